package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dockyard/src/destination"
	"dockyard/src/snapshot"
	"dockyard/src/transfer"
)

func newBackupCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up a volume, container, or directory",
	}
	cmd.AddCommand(newBackupVolumeCmd(stdout, stderr))
	cmd.AddCommand(newBackupContainerCmd(stdout, stderr))
	cmd.AddCommand(newBackupDirectoryCmd(stdout, stderr))
	return cmd
}

// cmdContext returns the command's context, falling back to Background.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newBackupVolumeCmd(stdout, stderr io.Writer) *cobra.Command {
	var outputType string
	cmd := &cobra.Command{
		Use:   "volume NAME OUTPUT",
		Short: "Back up a named volume to OUTPUT",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(cmd, stderr)
			ref, err := destination.ParseRef(outputType, args[1])
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
			entry, err := eng.BackupVolume(cmdContext(cmd), args[0], time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Backed up volume %s to %s (%s)\n", args[0], ref, entry.RelPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outputType, "output-type", "directory", "Destination type: directory or volume")
	return cmd
}

func newBackupContainerCmd(stdout, stderr io.Writer) *cobra.Command {
	var outputType string
	var volumes string
	var concurrency int
	cmd := &cobra.Command{
		Use:   "container NAME OUTPUT",
		Short: "Back up a container's mounts and recreation descriptor to OUTPUT",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(cmd, stderr)
			ref, err := destination.ParseRef(outputType, args[1])
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
			mgr := snapshot.NewManager(client, eng, concurrency, log)
			filter := snapshot.MountFilter{Include: splitList(volumes)}
			res, err := mgr.BackupContainer(cmdContext(cmd), args[0], filter, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Backed up container %s: %d mount(s), descriptor %s\n",
				args[0], len(res.Archives), res.DescriptorPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outputType, "output-type", "directory", "Destination type: directory or volume")
	cmd.Flags().StringVar(&volumes, "volumes", "", "Only back up these volumes (comma-separated)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Concurrent mount transfers (default 4)")
	return cmd
}

func newBackupDirectoryCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory INPUT OUTPUT",
		Short: "Archive a local directory into the backup tree at OUTPUT",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(cmd, stderr)
			input, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			ref, err := destination.ParseRef(string(destination.KindDirectory), args[1])
			if err != nil {
				return err
			}
			dest, err := destination.New(ref, nil)
			if err != nil {
				return err
			}
			// Purely local: no runtime connection, no helper containers.
			eng := transfer.NewEngine(nil, nil, dest, log)
			entry, err := eng.BackupDirectory(cmdContext(cmd), input, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Backed up directory %s to %s (%s)\n", input, ref, entry.RelPath)
			return nil
		},
	}
	return cmd
}

// splitList parses a comma-separated flag value, dropping empty elements.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
