package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/amrfleet/internal/fleet/core/service"
	"github.com/autopeer-io/amrfleet/internal/fleet/server/grpc"
	"github.com/autopeer-io/amrfleet/internal/fleet/server/http"
	"github.com/autopeer-io/amrfleet/internal/fleet/server/mqtt"
	"github.com/autopeer-io/amrfleet/pkg/log"
)

// Server defines the common interface for all sub-servers (grpc, mqtt, http)
// and background runners.
type Server interface {
	Start(ctx context.Context) error
}

// RunnerFunc adapts a blocking function to Server.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Start(ctx context.Context) error { return f(ctx) }

type named struct {
	name string
	Server
}

// Manager manages the lifecycle of all protocol servers.
type Manager struct {
	servers []named
}

// NewManager creates a new server manager and initializes all sub-servers.
// rec may be nil when the scheduler is disabled.
func NewManager(cfg *Config, svc *service.Service, rec http.Reconciler) *Manager {
	m := &Manager{}

	// Gateway API, probes and metrics.
	m.Add("http", http.NewServer(cfg.HttpOptions, svc, rec))

	if cfg.GrpcOptions.Enabled {
		m.Add("grpc", grpc.NewServer(cfg.GrpcOptions, svc))
	}

	// Robot fault ingress.
	if cfg.MQTTClient != nil {
		ingress := mqtt.NewServer(cfg.MQTTClient, cfg.Topics, svc, cfg.MqttOptions.QoS)
		if cfg.DispatchDone != nil {
			ingress.DisconnectAfter(cfg.DispatchDone)
		}
		m.Add("mqtt", ingress)
	}

	return m
}

// Add registers an additional server or runner.
func (m *Manager) Add(name string, s Server) {
	m.servers = append(m.servers, named{name: name, Server: s})
}

// Start launches all servers in parallel and waits for termination. The
// first failure stops the others.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, s := range m.servers {
		g.Go(func() error {
			if err := s.Start(ctx); err != nil {
				log.Error(err, "Server exited with error", "server", s.name)
				return err
			}
			return nil
		})
	}

	log.Info("All servers starting", "count", len(m.servers))
	return g.Wait()
}
