package app

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "AMRFLEETCTL"

type rootOptions struct {
	Server   string
	GRPCAddr string
	Timeout  time.Duration
	Output   string
}

// NewRootCommand returns the amr-fleetctl command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "amr-fleetctl",
		Short:         "Inspect and command an AMR fleet daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.Server = v.GetString("server")
			opts.GRPCAddr = v.GetString("grpc-addr")
			opts.Timeout = v.GetDuration("timeout")
			opts.Output = v.GetString("output")
			return validateOutput(opts.Output)
		},
	}
	cmd.SetOut(out)

	fs := cmd.PersistentFlags()
	fs.StringVarP(&opts.Server, "server", "s", "127.0.0.1:5050", "Address of the fleet daemon HTTP API.")
	fs.StringVar(&opts.GRPCAddr, "grpc-addr", "", "Send instance commands over gRPC to this address instead of HTTP.")
	fs.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "Per-request timeout.")
	fs.StringVarP(&opts.Output, "output", "o", "table", "Output format. One of: table, json.")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(fs)

	cmd.AddCommand(
		newRobotsCommand(opts),
		newTasksCommand(opts),
		newInstancesCommand(opts),
		newStatusCommand(opts),
		newRunCommand(opts),
		newReconcileCommand(opts),
	)
	for _, op := range []string{"pause", "resume", "cancel", "stop"} {
		cmd.AddCommand(newInstanceCommand(opts, op))
	}
	return cmd
}

func (o *rootOptions) http() *httpClient {
	return newHTTPClient(o.Server, o.Timeout)
}

// gateway returns the transport used for instance commands and status
// queries, and a func releasing it.
func (o *rootOptions) gateway() (gateway, func(), error) {
	if o.GRPCAddr == "" {
		return o.http(), func() {}, nil
	}
	c, err := dialGRPC(o.GRPCAddr)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = c.Close() }, nil
}

func (o *rootOptions) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, o.Timeout)
}
