package service

import (
	"context"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
	"github.com/autopeer-io/amrfleet/pkg/log"
)

// Service implements the fleet use cases: the command gateway used by
// operators and the creation of tasks and task instances.
type Service struct {
	repo        core.Repository
	tasks       core.TaskRepository
	instances   core.TaskInstanceStore
	robots      core.FleetRegistry
	assignments core.AssignmentStore
	notifier    core.Notifier
	clock       clock.PassiveClock

	newID func() string
}

// New creates the fleet service. A nil notifier discards events and a nil
// clock uses wall time.
func New(repo core.Repository, notifier core.Notifier, clk clock.PassiveClock) *Service {
	if notifier == nil {
		notifier = core.NopNotifier{}
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Service{
		repo:        repo,
		tasks:       repo.Task(),
		instances:   repo.Instance(),
		robots:      repo.Robot(),
		assignments: repo.Assignment(),
		notifier:    notifier,
		clock:       clk,
		newID:       uuid.NewString,
	}
}

// Ready reports whether the backing store answers.
func (s *Service) Ready(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) notify(ctx context.Context, evt *model.TransitionEvent) {
	if err := s.notifier.Notify(ctx, evt); err != nil {
		log.FromContext(ctx).Debug("Transition notification not delivered", "instance", evt.InstanceID, "error", err.Error())
	}
}
