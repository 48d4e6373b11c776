package fleet

import (
	"context"
	"fmt"
	"os"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/store/memory"
	"github.com/autopeer-io/amrfleet/internal/fleet/store/sqlite"
	"github.com/autopeer-io/amrfleet/pkg/log"
	"github.com/autopeer-io/amrfleet/pkg/mqtt"
	"github.com/autopeer-io/amrfleet/pkg/options"
)

// InitializeStore opens the repository selected by opts.
func InitializeStore(ctx context.Context, opts *options.StoreOptions) (core.Repository, error) {
	switch opts.Driver {
	case options.StoreDriverMemory:
		log.Info("Using in-memory store; state is lost on restart")
		return memory.New(), nil
	case options.StoreDriverSQLite:
		repo, err := sqlite.Open(ctx, opts.Path)
		if err != nil {
			log.Error(err, "failed to open sqlite store", "path", opts.Path)
			return nil, err
		}
		log.Info("Using sqlite store", "path", opts.Path)
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

func InitializeMQTTClient(opts *options.MqttOptions) (mqtt.Client, error) {
	cfg := opts.ToClientConfig()

	if cfg.ClientID == "" {
		hostname, _ := os.Hostname()
		cfg.ClientID = fmt.Sprintf("amr-fleetd-%s", hostname)
	}

	mqttclient, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "failed to new mqtt client")
		return nil, err
	}

	return mqttclient, nil
}
