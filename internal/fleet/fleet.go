// Package fleet assembles the AMR fleet daemon.
package fleet

import (
	"context"
	"fmt"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/service"
	"github.com/autopeer-io/amrfleet/internal/fleet/server"
	"github.com/autopeer-io/amrfleet/pkg/log"
)

// FleetServer is the running daemon.
type FleetServer struct {
	repo    core.Repository
	svc     *service.Service
	manager *server.Manager
	robots  []string
}

// Run seeds the fleet, then serves until ctx is done. The store is closed
// on return.
func (s *FleetServer) Run(ctx context.Context) error {
	defer func() {
		if err := s.repo.Close(); err != nil {
			log.Error(err, "Failed to close store")
		}
	}()

	added, err := s.svc.EnsureRobots(ctx, s.robots)
	if err != nil {
		return fmt.Errorf("failed to seed fleet: %w", err)
	}
	log.Info("Fleet ready", "robots", len(s.robots), "registered", added)

	return s.manager.Start(ctx)
}
