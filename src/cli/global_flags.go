package cli

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dockyard/src/safety"
)

// addGlobalFlags adds persistent flags shared by every subcommand.
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	cmd.PersistentFlags().String("helper-image", "", "Image used for helper containers (default alpine:latest)")
	cmd.PersistentFlags().BoolP("yes", "y", false, "Assume 'yes' to prompts and run non-interactively")
	cmd.PersistentFlags().Bool("force", false, "Force potentially destructive operations without prompting")
}

// getSafetyOptions reads global flags into a safety.Options struct.
func getSafetyOptions(cmd *cobra.Command) safety.Options {
	yes, _ := cmd.Root().PersistentFlags().GetBool("yes")
	force, _ := cmd.Root().PersistentFlags().GetBool("force")
	return safety.Options{Yes: yes, Force: force}
}

// newLogger builds the command's logger from the verbosity flags, writing
// human-readable output to stderr.
func newLogger(cmd *cobra.Command, stderr io.Writer) zerolog.Logger {
	verbosity, _ := cmd.Root().PersistentFlags().GetCount("verbose")
	level := zerolog.InfoLevel
	switch {
	case verbosity == 1:
		level = zerolog.DebugLevel
	case verbosity > 1:
		level = zerolog.TraceLevel
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	out := zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
