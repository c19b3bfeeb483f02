package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"dockyard/src/janitor"
)

func newCleanupCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove helper containers left behind by interrupted transfers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(cmd, stderr)
			client, _, err := connect(cmd, log)
			if err != nil {
				return err
			}
			removed, err := janitor.Cleanup(cmdContext(cmd), client, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Removed %d helper container(s)\n", removed)
			return nil
		},
	}
	return cmd
}
