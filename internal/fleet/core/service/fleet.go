package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
	"github.com/autopeer-io/amrfleet/pkg/log"
)

// ListRobots returns the fleet ordered by name.
func (s *Service) ListRobots(ctx context.Context) ([]*model.Robot, error) {
	return s.robots.List(ctx)
}

// EnsureRobots registers every name that is not yet part of the fleet as an
// Idle robot and returns how many were added.
func (s *Service) EnsureRobots(ctx context.Context, names []string) (int, error) {
	existing, err := s.robots.List(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		known[r.Name] = struct{}{}
	}

	created := 0
	for _, name := range names {
		if _, ok := known[name]; ok {
			continue
		}
		err := s.robots.Create(ctx, &model.Robot{ID: s.newID(), Name: name, Status: model.RobotIdle})
		if errors.Is(err, core.ErrConflict) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("failed to register robot %s: %w", name, err)
		}
		known[name] = struct{}{}
		created++
		log.FromContext(ctx).Info("Robot registered", "robot", name)
	}
	return created, nil
}

func (s *Service) robotByName(ctx context.Context, name string) (*model.Robot, error) {
	robots, err := s.robots.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range robots {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("robot %q: %w", name, core.ErrNotFound)
}
