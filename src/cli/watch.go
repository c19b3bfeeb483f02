package cli

import (
	"context"
	"errors"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dockyard/src/destination"
	"dockyard/src/snapshot"
	"dockyard/src/transfer"
	"dockyard/src/watch"
)

func newWatchCmd(stdout, stderr io.Writer) *cobra.Command {
	var outputType string
	var cronExpr string
	var excludeContainers []string
	var excludeVolumes []string
	var concurrency int64
	cmd := &cobra.Command{
		Use:   "watch OUTPUT",
		Short: "Back up running containers on a cron schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(cmd, stderr)
			ref, err := destination.ParseRef(outputType, args[0])
			if err != nil {
				return err
			}
			client, runner, err := connect(cmd, log)
			if err != nil {
				return err
			}
			dest, err := destination.New(ref, runner)
			if err != nil {
				return err
			}
			eng := transfer.NewEngine(client, runner, dest, log)
			mgr := snapshot.NewManager(client, eng, 0, log)
			w, err := watch.New(client, mgr, watch.Config{
				Cron:              cronExpr,
				ExcludeContainers: excludeContainers,
				ExcludeVolumes:    excludeVolumes,
				Concurrency:       concurrency,
			}, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmdContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outputType, "output-type", "directory", "Destination type: directory or volume")
	cmd.Flags().StringVar(&cronExpr, "cron", watch.DefaultCron, "Cron schedule for backup sweeps")
	cmd.Flags().StringSliceVar(&excludeContainers, "exclude-containers", nil, "Containers to skip")
	cmd.Flags().StringSliceVar(&excludeVolumes, "exclude-volumes", nil, "Volumes to skip in every container backup")
	cmd.Flags().Int64Var(&concurrency, "concurrency", 0, "Concurrent container backups (default 2)")
	return cmd
}
