package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/autopeer-io/amrfleet/internal/fleet/core/service"
	"github.com/autopeer-io/amrfleet/pkg/log"
	"github.com/autopeer-io/amrfleet/pkg/options"
)

// Reconciler starts an on-demand scheduling pass.
type Reconciler interface {
	Trigger(ctx context.Context) bool
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
}

// NewServer builds the HTTP gateway. rec may be nil when the scheduler is
// disabled.
func NewServer(opts *options.HttpOptions, svc *service.Service, rec Reconciler) *Server {
	return &Server{
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewHandler(svc, rec),
			ReadHeaderTimeout: opts.Timeout,
			ReadTimeout:       opts.Timeout,
			WriteTimeout:      opts.Timeout,
		},
		options: opts,
	}
}

func (s *Server) Start(ctx context.Context) error {
	log.Info("Starting HTTP server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info("Stopping HTTP server")
		return s.server.Shutdown(shutdownCtx)
	}
}
