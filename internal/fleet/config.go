package fleet

import (
	"context"
	"fmt"

	"github.com/autopeer-io/amrfleet/internal/fleet/archive"
	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/service"
	"github.com/autopeer-io/amrfleet/internal/fleet/notifier"
	"github.com/autopeer-io/amrfleet/internal/fleet/scheduler"
	"github.com/autopeer-io/amrfleet/internal/fleet/server"
	"github.com/autopeer-io/amrfleet/internal/fleet/server/http"
	"github.com/autopeer-io/amrfleet/pkg/log"
	"github.com/autopeer-io/amrfleet/pkg/mqtt/topic"
	"github.com/autopeer-io/amrfleet/pkg/options"
)

type Config struct {
	HttpOptions      *options.HttpOptions
	GrpcOptions      *options.GrpcOptions
	MqttOptions      *options.MqttOptions
	S3Options        *options.S3Options
	SchedulerOptions *options.SchedulerOptions
	StoreOptions     *options.StoreOptions
	FleetOptions     *options.FleetOptions
	ArchiveOptions   *options.ArchiveOptions
}

// NewFleetServer wires the store, the core service and every enabled
// surface of the daemon.
func (cfg *Config) NewFleetServer(ctx context.Context) (*FleetServer, error) {
	// 1. Infrastructure: Store
	repo, err := InitializeStore(ctx, cfg.StoreOptions)
	if err != nil {
		return nil, err
	}

	fs := &FleetServer{repo: repo, robots: cfg.FleetOptions.Robots}
	srvCfg := &server.Config{
		HttpOptions: cfg.HttpOptions,
		GrpcOptions: cfg.GrpcOptions,
		MqttOptions: cfg.MqttOptions,
		Topics:      topic.NewTopicBuilder(cfg.MqttOptions.TopicRoot),
	}

	// 2. Infrastructure: Notifier
	var n core.Notifier = core.NopNotifier{}
	var dispatcher *notifier.Dispatcher
	if cfg.MqttOptions.Enabled {
		client, err := InitializeMQTTClient(cfg.MqttOptions)
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		srvCfg.MQTTClient = client
		dispatcher = notifier.New(notifier.Config{
			Publisher: client,
			Topics:    srvCfg.Topics,
			QoS:       cfg.MqttOptions.QoS,
			Instances: repo.Instance(),
		})
		n = dispatcher
		srvCfg.DispatchDone = dispatcher.Done()
	}

	// 3. Core Domain Service
	fs.svc = service.New(repo, n, nil)

	// 4. Scheduler
	var rec http.Reconciler
	var sched *scheduler.Scheduler
	if cfg.SchedulerOptions.Enabled {
		sched = scheduler.New(scheduler.Config{Repo: repo, Notifier: n, Log: log.WithName("scheduler")})
		rec = sched
	}

	// 5. Ingress Servers and background runners
	fs.manager = server.NewManager(srvCfg, fs.svc, rec)
	if sched != nil {
		interval := cfg.SchedulerOptions.Interval
		fs.manager.Add("scheduler", server.RunnerFunc(func(ctx context.Context) error {
			return sched.Run(ctx, interval)
		}))
	}
	if dispatcher != nil {
		fs.manager.Add("dispatcher", server.RunnerFunc(dispatcher.Start))
	}
	if cfg.ArchiveOptions.Enabled {
		provider, err := archive.NewMinIOProvider(cfg.S3Options)
		if err != nil {
			_ = repo.Close()
			return nil, err
		}
		archiver := archive.New(provider, repo, cfg.ArchiveOptions.Prefix, nil)
		interval := cfg.ArchiveOptions.Interval
		fs.manager.Add("archive", server.RunnerFunc(func(ctx context.Context) error {
			return archiver.Run(ctx, interval)
		}))
	}

	return fs, nil
}
