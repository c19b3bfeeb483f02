package destination

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dockyard/src/errdefs"
)

// directoryDest writes archives under a local root directory.
type directoryDest struct {
	ref  Ref
	root string
}

func newDirectory(root string) (*directoryDest, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("preparing destination root %s: %w", root, err)
	}
	return &directoryDest{ref: Ref{Kind: KindDirectory, Root: root}, root: root}, nil
}

func (d *directoryDest) Ref() Ref { return d.ref }

func (d *directoryDest) Store(ctx context.Context, relPath string, from io.Reader) error {
	full := filepath.Join(d.root, filepath.FromSlash(relPath))
	if _, err := os.Stat(full); err == nil {
		// Archives are append-only; a colliding key means a second backup of
		// the same resource within one timestamp granule.
		return fmt.Errorf("refusing to overwrite existing archive %s", relPath)
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	if _, err := io.Copy(tmp, from); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (d *directoryDest) Open(ctx context.Context, relPath string) (io.ReadCloser, error) {
	full := filepath.Join(d.root, filepath.FromSlash(relPath))
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errdefs.NotFoundError{Resource: "archive", Name: relPath}
		}
		return nil, err
	}
	return f, nil
}
