package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"dockyard/src/codec"
	"dockyard/src/destination"
	"dockyard/src/errdefs"
	"dockyard/src/resource"
	"dockyard/src/safety"
	"dockyard/src/snapshot"
	"dockyard/src/transfer"
)

func newRestoreCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a volume, container, or directory from a backup",
	}
	cmd.AddCommand(newRestoreVolumeCmd(stdout, stderr))
	cmd.AddCommand(newRestoreContainerCmd(stdout, stderr))
	cmd.AddCommand(newRestoreDirectoryCmd(stdout, stderr))
	return cmd
}

func newRestoreVolumeCmd(stdout, stderr io.Writer) *cobra.Command {
	var inputType string
	cmd := &cobra.Command{
		Use:   "volume ARCHIVE INPUT VOLUME",
		Short: "Restore an archive from INPUT into the named volume",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(cmd, stderr)
			ref, err := destination.ParseRef(inputType, args[1])
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
			if err := eng.RestoreMount(cmdContext(cmd), args[0], resource.Volume(args[2])); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Restored %s into volume %s\n", args[0], args[2])
			return nil
		},
	}
	cmd.Flags().StringVar(&inputType, "input-type", "directory", "Source type: directory or volume")
	return cmd
}

func newRestoreContainerCmd(stdout, stderr io.Writer) *cobra.Command {
	var inputType string
	cmd := &cobra.Command{
		Use:   "container FILE INPUT NAME",
		Short: "Recreate a container from a descriptor in INPUT",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(cmd, stderr)
			descPath, input, name := args[0], args[1], args[2]
			ref, err := destination.ParseRef(inputType, input)
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
			ctx := cmdContext(cmd)

			replace := false
			if _, err := client.InspectContainer(ctx, name); err == nil {
				opts := getSafetyOptions(cmd)
				if !opts.Force {
					ok, err := safety.Confirm(opts, cmd.InOrStdin(), stdout,
						fmt.Sprintf("Container %s already exists; replace it?", name))
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("restore of %s aborted: container exists (use --force to replace)", name)
					}
				}
				replace = true
			} else if !errdefs.IsNotFound(err) {
				return err
			}

			if err := mgr.RestoreContainer(ctx, descPath, name, replace); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Restored container %s from %s\n", name, descPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&inputType, "input-type", "directory", "Source type: directory or volume")
	return cmd
}

func newRestoreDirectoryCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory ARCHIVE OUTPUT",
		Short: "Unpack a local archive file into a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			output, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			f, err := os.Open(archive)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := codec.Unpack(f, output); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Restored %s into %s\n", archive, output)
			return nil
		},
	}
	return cmd
}
