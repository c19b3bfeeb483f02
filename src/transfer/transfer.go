// Package transfer performs one backup or restore of a single mount,
// directory, or volume, composing the helper runner with a destination.
package transfer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"dockyard/src/codec"
	"dockyard/src/destination"
	"dockyard/src/dockerapi"
	"dockyard/src/helper"
	"dockyard/src/layout"
	"dockyard/src/mounts"
	"dockyard/src/resource"
	"dockyard/src/util/progress"
)

// ArchiveEntry records one immutable, timestamped archive. The (resource,
// timestamp) pair is the sole version key; archives are appended, never
// overwritten.
type ArchiveEntry struct {
	Resource    resource.Ref
	CreatedAt   time.Time
	Destination destination.Ref
	RelPath     string
}

// Engine moves bytes between resources and a destination.
type Engine struct {
	client dockerapi.Client
	runner *helper.Runner
	dest   destination.Destination
	log    zerolog.Logger
}

func NewEngine(client dockerapi.Client, runner *helper.Runner, dest destination.Destination, log zerolog.Logger) *Engine {
	return &Engine{
		client: client,
		runner: runner,
		dest:   dest,
		log:    log.With().Str("component", "transfer").Logger(),
	}
}

// Destination returns the engine's destination.
func (e *Engine) Destination() destination.Destination { return e.dest }

// BackupMount archives one resolved mount. The returned entry exists only
// once the stream is durably committed; any failure leaves no addressable
// artifact at the destination.
func (e *Engine) BackupMount(ctx context.Context, md mounts.Descriptor, now time.Time) (ArchiveEntry, error) {
	var relPath string
	switch md.Kind {
	case resource.KindVolume:
		relPath = layout.VolumeArchivePath(md.Source, now)
	case resource.KindBind:
		relPath = layout.BindArchivePath(md.Destination, now)
	default:
		return ArchiveEntry{}, fmt.Errorf("cannot back up mount of kind %s", md.Kind)
	}
	res := md.Resource()
	if err := e.archiveTo(ctx, res, relPath); err != nil {
		return ArchiveEntry{}, err
	}
	return ArchiveEntry{Resource: res, CreatedAt: now.UTC(), Destination: e.dest.Ref(), RelPath: relPath}, nil
}

// RestoreMount extracts the archive at relPath into the target volume or
// bind. Existing data at the target is overwritten file by file by the
// extraction; prior contents are not validated.
func (e *Engine) RestoreMount(ctx context.Context, relPath string, target resource.Ref) error {
	if target.Kind == resource.KindVolume {
		if err := e.client.CreateVolume(ctx, target.Value); err != nil {
			return fmt.Errorf("restoring %s: %w", target, err)
		}
	}
	rc, err := e.dest.Open(ctx, relPath)
	if err != nil {
		return fmt.Errorf("restoring %s from %s: %w", target, relPath, err)
	}
	defer rc.Close()
	counter := progress.NewCounter(rc)
	if err := e.runner.RunWrite(ctx, target, func(w io.Writer) error {
		_, err := io.Copy(w, counter)
		return err
	}); err != nil {
		return fmt.Errorf("restoring %s from %s: %w", target, relPath, err)
	}
	e.log.Debug().Stringer("target", target).Str("archive", relPath).Int64("bytes", counter.N()).Msg("mount restored")
	return nil
}

// BackupVolume archives a named volume directly (outside any container
// backup). The volume must exist.
func (e *Engine) BackupVolume(ctx context.Context, name string, now time.Time) (ArchiveEntry, error) {
	if _, err := e.client.InspectVolume(ctx, name); err != nil {
		return ArchiveEntry{}, fmt.Errorf("backing up volume %s: %w", name, err)
	}
	relPath := layout.VolumeArchivePath(name, now)
	res := resource.Volume(name)
	if err := e.archiveTo(ctx, res, relPath); err != nil {
		return ArchiveEntry{}, err
	}
	return ArchiveEntry{Resource: res, CreatedAt: now.UTC(), Destination: e.dest.Ref(), RelPath: relPath}, nil
}

// BackupDirectory archives a directory reachable by this process, without a
// helper container. The archive lands under binds/ keyed by the sanitized
// input path.
func (e *Engine) BackupDirectory(ctx context.Context, dir string, now time.Time) (ArchiveEntry, error) {
	relPath := layout.BindArchivePath(dir, now)
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(codec.Pack(dir, pw))
	}()
	counter := progress.NewCounter(pr)
	if err := e.dest.Store(ctx, relPath, counter); err != nil {
		pr.CloseWithError(err)
		return ArchiveEntry{}, fmt.Errorf("backing up directory %s: %w", dir, err)
	}
	e.log.Debug().Str("directory", dir).Str("archive", relPath).Int64("bytes", counter.N()).Msg("directory backed up")
	return ArchiveEntry{Resource: resource.Directory(dir), CreatedAt: now.UTC(), Destination: e.dest.Ref(), RelPath: relPath}, nil
}

// RestoreDirectory unpacks the archive at relPath into a local directory.
func (e *Engine) RestoreDirectory(ctx context.Context, relPath, dir string) error {
	rc, err := e.dest.Open(ctx, relPath)
	if err != nil {
		return fmt.Errorf("restoring directory %s from %s: %w", dir, relPath, err)
	}
	defer rc.Close()
	if err := codec.Unpack(rc, dir); err != nil {
		return fmt.Errorf("restoring directory %s from %s: %w", dir, relPath, err)
	}
	return nil
}

// archiveTo streams a tar.gz of res into the destination at relPath. The
// read helper and the store run concurrently, joined by a pipe that is
// closed with the helper's final status, so the store only commits once the
// helper has exited cleanly. A helper that dies mid-stream therefore never
// leaves an addressable artifact.
func (e *Engine) archiveTo(ctx context.Context, res resource.Ref, relPath string) error {
	pr, pw := io.Pipe()
	counter := progress.NewCounter(pr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := e.runner.RunRead(gctx, res, func(r io.Reader) error {
			_, err := io.Copy(pw, r)
			return err
		})
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := e.dest.Store(gctx, relPath, counter)
		if err != nil {
			pr.CloseWithError(err)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("backing up %s: %w", res, err)
	}
	e.log.Debug().Stringer("resource", res).Str("archive", relPath).Int64("bytes", counter.N()).Msg("archive committed")
	return nil
}
