package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRobotsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "robots",
		Short: "List the robots of the fleet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd.Context())
			defer cancel()

			robots, err := opts.http().Robots(ctx)
			if err != nil {
				return err
			}
			return printRobots(cmd.OutOrStdout(), opts.Output, robots)
		},
	}
}

func newTasksCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List task definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd.Context())
			defer cancel()

			tasks, err := opts.http().Tasks(ctx)
			if err != nil {
				return err
			}
			return printTasks(cmd.OutOrStdout(), opts.Output, tasks)
		},
	}
}

func newInstancesCommand(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "instances",
		Aliases: []string{"ls"},
		Short:   "List task instances in dispatch order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd.Context())
			defer cancel()

			instances, err := opts.http().Instances(ctx, all)
			if err != nil {
				return err
			}
			return printInstances(cmd.OutOrStdout(), opts.Output, instances)
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include instances that reached a terminal status.")
	return cmd
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status INSTANCE_ID",
		Short: "Show the status of a task instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, release, err := opts.gateway()
			if err != nil {
				return err
			}
			defer release()

			ctx, cancel := opts.context(cmd.Context())
			defer cancel()

			report, err := gw.Status(ctx, args[0])
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), opts.Output, report)
		},
	}
}

func newInstanceCommand(opts *rootOptions, op string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " INSTANCE_ID",
		Short: fmt.Sprintf("Request %s of a task instance", op),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, release, err := opts.gateway()
			if err != nil {
				return err
			}
			defer release()

			ctx, cancel := opts.context(cmd.Context())
			defer cancel()

			st, err := gw.Command(ctx, op, args[0])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.Output, args[0], st)
		},
	}
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "run TASK_ID",
		Aliases: []string{"execute"},
		Short:   "Queue a new instance of a task definition",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd.Context())
			defer cancel()

			id, st, err := opts.http().Execute(ctx, args[0])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.Output, id, st)
		},
	}
}

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Ask the daemon to run a reconciliation pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd.Context())
			defer cancel()

			triggered, err := opts.http().Reconcile(ctx)
			if err != nil {
				return err
			}
			if triggered {
				fmt.Fprintln(cmd.OutOrStdout(), "reconciliation started")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "reconciliation already running")
			}
			return nil
		},
	}
}
