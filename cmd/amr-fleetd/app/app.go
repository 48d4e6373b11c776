package app

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/automaxprocs/maxprocs"
	genericapiserver "k8s.io/apiserver/pkg/server"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/autopeer-io/amrfleet/cmd/amr-fleetd/app/options"
	"github.com/autopeer-io/amrfleet/pkg/app"
	"github.com/autopeer-io/amrfleet/pkg/log"
)

const (
	commandName = "amr-fleetd"
	commandDesc = `The AMR fleet daemon keeps a fleet of autonomous mobile robots busy.
Every scheduling interval it pairs idle robots with the oldest queued task
instance and moves assigned instances forward one action at a time. Operators
pause, resume, cancel and stop instances over HTTP or gRPC.`
)

func NewApp() *app.App {
	opts := options.NewFleetdOptions()
	application := app.NewApp(
		commandName,
		"Launch the AMR fleet daemon",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithConfigReload(reloadLogLevel),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.FleetdOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		ctrllog.SetLogger(log.Std().Logr())

		if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
			log.Info(fmt.Sprintf(format, args...))
		})); err != nil {
			log.Warn("Failed to set GOMAXPROCS", "error", err.Error())
		}

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		server, err := cfg.NewFleetServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create fleet server: %w", err)
		}

		return server.Run(ctx)
	}
}

// reloadLogLevel applies log.level from a changed configuration file. Other
// settings need a restart.
func reloadLogLevel(v *viper.Viper) {
	level := v.GetString("log.level")
	if err := log.SetLevel(level); err != nil {
		log.Warn("Ignoring log level from configuration", "error", err.Error())
		return
	}
	log.Info("Log level changed", "level", level)
}
