package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dockyard/src/dockerapi"
	"dockyard/src/helper"
)

// NewRootCmd returns the root cobra command for the dockyard CLI.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dockyard",
		Short:         "Back up and restore containers, volumes, and bind mounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	addGlobalFlags(cmd)

	cmd.AddCommand(newBackupCmd(stdout, stderr))
	cmd.AddCommand(newRestoreCmd(stdout, stderr))
	cmd.AddCommand(newWatchCmd(stdout, stderr))
	cmd.AddCommand(newListCmd(stdout, stderr))
	cmd.AddCommand(newCleanupCmd(stdout, stderr))
	cmd.AddCommand(newVersionCmd(stdout))

	return cmd
}

// Execute runs the CLI with the process stdio.
func Execute() int {
	root := NewRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// connect dials the container runtime and builds the helper runner used for
// all mediated transfers.
func connect(cmd *cobra.Command, log zerolog.Logger) (dockerapi.Client, *helper.Runner, error) {
	client, err := dockerapi.Connect()
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(cmdContext(cmd)); err != nil {
		return nil, nil, err
	}
	image, _ := cmd.Root().PersistentFlags().GetString("helper-image")
	return client, helper.NewRunner(client, image, log), nil
}
