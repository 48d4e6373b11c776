// Package app builds cobra commands from option trees, loading values from
// flags, an optional configuration file and the environment.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
)

// RunFunc is the entry point invoked once options are loaded and valid.
type RunFunc func() error

// Option configures an App.
type Option func(*App)

// App is a command line application.
type App struct {
	basename    string
	shortDesc   string
	description string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	args        cobra.PositionalArgs
	onReload    func(v *viper.Viper)

	viper *viper.Viper
	cmd   *cobra.Command
}

// WithOptions sets the option tree populated from flags, file and env.
func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc sets the application entry point.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithDescription sets the long description.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithDefaultValidArgs rejects positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// WithConfigReload registers fn to run when the configuration file changes.
func WithConfigReload(fn func(v *viper.Viper)) Option {
	return func(a *App) { a.onReload = fn }
}

// NewApp creates an application named basename.
func NewApp(basename, shortDesc string, opts ...Option) *App {
	a := &App{basename: basename, shortDesc: shortDesc, viper: viper.New()}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

// Command returns the cobra command of the application.
func (a *App) Command() *cobra.Command { return a.cmd }

// Run executes the application and exits the process on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.basename,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	var namedFlagSets cliflag.NamedFlagSets
	if a.options != nil {
		namedFlagSets = a.options.Flags()
	}
	load := addConfigFlag(a.viper, a.basename, namedFlagSets.FlagSet("global"))
	namedFlagSets.FlagSet("global").BoolP("help", "h", false, fmt.Sprintf("help for %s", cmd.Name()))

	fs := cmd.Flags()
	for _, f := range namedFlagSets.FlagSets {
		fs.AddFlagSet(f)
	}

	cliflag.SetUsageAndHelpFunc(cmd, namedFlagSets, 0)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := a.loadOptions(cmd, load); err != nil {
			return err
		}
		if a.runFunc == nil {
			return nil
		}
		return a.runFunc()
	}
	a.cmd = cmd
}

// loadOptions merges file and env values under the command line flags and
// decodes the result into the option tree.
func (a *App) loadOptions(cmd *cobra.Command, load func() error) error {
	if err := load(); err != nil {
		return err
	}
	if a.viper.ConfigFileUsed() == "" {
		if path := defaultConfigName(a.basename); fileExists(path) {
			a.viper.SetConfigFile(path)
			if err := a.viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read configuration file %s: %w", path, err)
			}
		}
	}
	if err := a.viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if a.options == nil {
		return nil
	}
	if err := a.viper.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to decode options: %w", err)
	}
	if err := a.options.Complete(); err != nil {
		return err
	}
	if err := a.options.Validate(); err != nil {
		return err
	}

	watchConfig(a.viper, a.onReload)
	return nil
}
