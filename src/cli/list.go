package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dockyard/src/destination"
)

func newListCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list ROOT",
		Short: "List archives and descriptors under a backup directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := destination.ListEntries(args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(stdout, "No backups found.")
				return nil
			}
			w := tabwriter.NewWriter(stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tNAME\tTIMESTAMP\tPATH")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Type, e.Name, e.Timestamp, e.Path)
			}
			return w.Flush()
		},
	}
	return cmd
}
