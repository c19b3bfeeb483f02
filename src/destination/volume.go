package destination

import (
	"context"
	"fmt"
	"io"
)

// volumeDest stores archives inside a named volume, mediated by helper
// containers: writes land under a temporary name and are renamed into place
// by the helper, reads are streamed out of the volume.
type volumeDest struct {
	ref    Ref
	runner helperRunner
}

// helperRunner is the slice of helper.Runner the volume destination needs.
type helperRunner interface {
	StoreFile(ctx context.Context, volume, relPath string, produce func(io.Writer) error) error
	FetchFile(ctx context.Context, volume, relPath string, consume func(io.Reader) error) error
	FileExists(ctx context.Context, volume, relPath string) (bool, error)
}

func (v *volumeDest) Ref() Ref { return v.ref }

func (v *volumeDest) Store(ctx context.Context, relPath string, from io.Reader) error {
	// Archives are append-only here too, same as the directory sink.
	exists, err := v.runner.FileExists(ctx, v.ref.Root, relPath)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("refusing to overwrite existing archive %s", relPath)
	}
	return v.runner.StoreFile(ctx, v.ref.Root, relPath, func(w io.Writer) error {
		_, err := io.Copy(w, from)
		return err
	})
}

func (v *volumeDest) Open(ctx context.Context, relPath string) (io.ReadCloser, error) {
	pr, pw := io.Pipe()
	go func() {
		err := v.runner.FetchFile(ctx, v.ref.Root, relPath, func(r io.Reader) error {
			_, err := io.Copy(pw, r)
			return err
		})
		// A fetch error (including NotFoundError for a missing archive)
		// surfaces on the reader's first Read.
		pw.CloseWithError(err)
	}()
	return pr, nil
}
