// Package destination abstracts where archive bytes are written to and read
// from. A directory destination is plain filesystem I/O; a volume
// destination delegates every read and write to a helper container, the
// same mediation used to reach source data.
package destination

import (
	"context"
	"io"

	"dockyard/src/helper"
)

// Destination is a sink/source of archive bytes addressed by root-relative
// slash paths.
type Destination interface {
	Ref() Ref

	// Store durably commits the stream at relPath. The write is atomic: a
	// partially written artifact is never left addressable, and an existing
	// artifact is never overwritten.
	Store(ctx context.Context, relPath string, from io.Reader) error

	// Open returns the committed bytes at relPath. A missing artifact
	// surfaces as errdefs.NotFoundError, possibly on first read for
	// mediated destinations.
	Open(ctx context.Context, relPath string) (io.ReadCloser, error)
}

// New builds the Destination for a parsed ref. The runner is only used by
// volume destinations.
func New(ref Ref, runner *helper.Runner) (Destination, error) {
	switch ref.Kind {
	case KindDirectory:
		return newDirectory(ref.Root)
	case KindVolume:
		return &volumeDest{ref: ref, runner: runner}, nil
	}
	return nil, &badRefError{ref}
}

type badRefError struct{ ref Ref }

func (e *badRefError) Error() string { return "unsupported destination: " + e.ref.String() }
