// Package janitor finds and removes helper containers left behind by
// crashed or interrupted transfers.
package janitor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"dockyard/src/dockerapi"
	"dockyard/src/errdefs"
	"dockyard/src/helper"
)

// Cleanup force-removes every container carrying the management label,
// running or not, and returns how many were removed. Individual removal
// failures are logged and counted but do not stop the sweep; running it
// again is safe and removes nothing the first pass already got.
func Cleanup(ctx context.Context, client dockerapi.Client, log zerolog.Logger) (int, error) {
	log = log.With().Str("component", "janitor").Logger()
	containers, err := client.ListContainers(ctx, true, []string{helper.ManagedLabel + "=true"})
	if err != nil {
		return 0, fmt.Errorf("listing helper containers: %w", err)
	}

	removed := 0
	failed := 0
	for _, c := range containers {
		if err := client.RemoveContainer(ctx, c.ID, true); err != nil {
			if errdefs.IsNotFound(err) {
				continue
			}
			failed++
			log.Error().Str("helper", c.Name).Err(err).Msg("failed to remove helper container")
			continue
		}
		removed++
		log.Info().Str("helper", c.Name).Msg("removed orphaned helper container")
	}
	if failed > 0 {
		return removed, fmt.Errorf("failed to remove %d helper container(s)", failed)
	}
	return removed, nil
}
