// Package helper creates the short-lived containers that mediate byte-level
// access to volumes and binds. Every transfer follows the same discipline:
// acquire a helper, stream through its attached stdio, release the helper on
// every exit path. Helpers never outlive their single transfer under normal
// completion; anything left behind is the janitor's job to find via the
// management label.
package helper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dockyard/src/dockerapi"
	"dockyard/src/errdefs"
	"dockyard/src/resource"
)

// ManagedLabel marks every container this tool creates so orphans are
// discoverable after a crash.
const ManagedLabel = "com.github.aig787.dockyard.helper"

// DefaultImage is the helper image; it only needs tar, cat, and sh.
const DefaultImage = "alpine:latest"

const (
	transferPoint = "/transfer"
	backupPoint   = "/backup"
)

// Runner creates, drives, and tears down helper containers.
type Runner struct {
	client dockerapi.Client
	image  string
	log    zerolog.Logger
}

func NewRunner(client dockerapi.Client, image string, log zerolog.Logger) *Runner {
	if image == "" {
		image = DefaultImage
	}
	return &Runner{client: client, image: image, log: log.With().Str("component", "helper").Logger()}
}

// Image returns the configured helper image.
func (r *Runner) Image() string { return r.image }

// RunRead mounts res read-only, produces a tar.gz archive of its contents,
// and streams it to consume. The helper is removed on every exit path.
func (r *Runner) RunRead(ctx context.Context, res resource.Ref, consume func(io.Reader) error) error {
	mount, err := resourceMount(res, true)
	if err != nil {
		return err
	}
	return r.run(ctx, runSpec{
		purpose: "read",
		cmd:     []string{"tar", "-czf", "-", "-C", transferPoint, "."},
		mounts:  []dockerapi.MountSpec{mount},
		consume: consume,
	}, res.String())
}

// RunWrite mounts res read-write and extracts a tar.gz stream produced by
// produce into it. A non-zero helper exit is a TransferError; the helper is
// removed regardless.
func (r *Runner) RunWrite(ctx context.Context, res resource.Ref, produce func(io.Writer) error) error {
	mount, err := resourceMount(res, false)
	if err != nil {
		return err
	}
	return r.run(ctx, runSpec{
		purpose: "write",
		cmd:     []string{"tar", "-xzf", "-", "-C", transferPoint},
		mounts:  []dockerapi.MountSpec{mount},
		produce: produce,
	}, res.String())
}

// missingFileExit distinguishes "file absent" from every other failure of a
// fetch helper (cat itself exits 1 for permission and I/O errors too).
const missingFileExit = 4

// FetchFile streams one file from inside a named volume to consume. A
// missing file surfaces as NotFoundError; read failures on a file that does
// exist stay TransferError.
func (r *Runner) FetchFile(ctx context.Context, volume, relPath string, consume func(io.Reader) error) error {
	full := path.Join(backupPoint, relPath)
	script := fmt.Sprintf("[ -e %s ] || exit %d; cat %s", full, missingFileExit, full)
	err := r.run(ctx, runSpec{
		purpose: "read",
		cmd:     []string{"sh", "-c", script},
		mounts: []dockerapi.MountSpec{
			{Type: "volume", Source: volume, Target: backupPoint, ReadOnly: true},
		},
		consume: consume,
	}, resource.Volume(volume).String())
	var te *errdefs.TransferError
	if errors.As(err, &te) && te.ExitCode == missingFileExit {
		return &errdefs.NotFoundError{Resource: "archive", Name: relPath}
	}
	return err
}

// FileExists reports whether relPath exists inside a named volume.
func (r *Runner) FileExists(ctx context.Context, volume, relPath string) (bool, error) {
	full := path.Join(backupPoint, relPath)
	err := r.run(ctx, runSpec{
		purpose: "read",
		cmd:     []string{"test", "-e", full},
		mounts: []dockerapi.MountSpec{
			{Type: "volume", Source: volume, Target: backupPoint, ReadOnly: true},
		},
	}, resource.Volume(volume).String())
	var te *errdefs.TransferError
	if errors.As(err, &te) && te.Err == nil && te.ExitCode == 1 {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// StoreFile writes a stream produced by produce to a file inside a named
// volume. The write lands under a temporary name and is renamed into place
// only after the stream completes, so a torn write is never addressable.
func (r *Runner) StoreFile(ctx context.Context, volume, relPath string, produce func(io.Writer) error) error {
	full := path.Join(backupPoint, relPath)
	dir := path.Dir(full)
	script := fmt.Sprintf("mkdir -p %s && cat > %s.partial && mv %s.partial %s", dir, full, full, full)
	return r.run(ctx, runSpec{
		purpose: "write",
		cmd:     []string{"sh", "-c", script},
		mounts: []dockerapi.MountSpec{
			{Type: "volume", Source: volume, Target: backupPoint},
		},
		produce: produce,
	}, resource.Volume(volume).String())
}

type runSpec struct {
	purpose string
	cmd     []string
	mounts  []dockerapi.MountSpec
	produce func(io.Writer) error // nil for read-side helpers
	consume func(io.Reader) error // nil for write-side helpers
}

// run is the scoped acquire/use/release core shared by all helper flavors.
func (r *Runner) run(ctx context.Context, spec runSpec, transferred string) error {
	name := fmt.Sprintf("dockyard-%s-%s", spec.purpose, uuid.NewString())
	id, err := r.client.CreateContainer(ctx, dockerapi.ContainerSpec{
		Name:      name,
		Image:     r.image,
		Cmd:       spec.cmd,
		Labels:    map[string]string{ManagedLabel: "true"},
		Mounts:    spec.mounts,
		OpenStdin: spec.produce != nil,
	})
	if err != nil {
		return fmt.Errorf("creating helper for %s: %w", transferred, err)
	}
	defer func() {
		// A completed transfer must not fail because teardown did; a leaked
		// container is the janitor's concern.
		if rmErr := r.client.RemoveContainer(context.WithoutCancel(ctx), id, true); rmErr != nil && !errdefs.IsNotFound(rmErr) {
			r.log.Warn().Str("helper", name).Err(rmErr).Msg("failed to remove helper container")
		}
	}()

	attach, err := r.client.AttachContainer(ctx, id)
	if err != nil {
		return fmt.Errorf("attaching helper for %s: %w", transferred, err)
	}
	defer attach.Close()

	if err := r.client.StartContainer(ctx, id); err != nil {
		return fmt.Errorf("starting helper for %s: %w", transferred, err)
	}
	r.log.Debug().Str("helper", name).Str("resource", transferred).Msg("helper started")

	if spec.produce != nil {
		if err := spec.produce(attach.Stdin); err != nil {
			return &errdefs.TransferError{Resource: transferred, Err: err}
		}
		if err := attach.Stdin.Close(); err != nil {
			return &errdefs.TransferError{Resource: transferred, Err: err}
		}
		// Drain until the helper exits so the wait below observes the real
		// exit code rather than a torn stream.
		if _, err := io.Copy(io.Discard, attach.Stdout); err != nil {
			return &errdefs.TransferError{Resource: transferred, Err: err}
		}
	}
	if spec.consume != nil {
		if err := spec.consume(attach.Stdout); err != nil {
			return &errdefs.TransferError{Resource: transferred, Err: err}
		}
		// The consumer may stop at the logical end of the stream; drain any
		// trailing bytes so the helper can finish writing and exit.
		if _, err := io.Copy(io.Discard, attach.Stdout); err != nil {
			return &errdefs.TransferError{Resource: transferred, Err: err}
		}
	}

	code, err := r.client.WaitContainer(ctx, id)
	if err != nil {
		return fmt.Errorf("waiting for helper for %s: %w", transferred, err)
	}
	if code != 0 {
		return &errdefs.TransferError{Resource: transferred, ExitCode: code}
	}
	return nil
}

// resourceMount maps a transferable resource onto the fixed helper mount
// point. Directories are reachable by this process directly and never go
// through a helper.
func resourceMount(res resource.Ref, readOnly bool) (dockerapi.MountSpec, error) {
	switch res.Kind {
	case resource.KindVolume:
		return dockerapi.MountSpec{Type: "volume", Source: res.Value, Target: transferPoint, ReadOnly: readOnly}, nil
	case resource.KindBind:
		return dockerapi.MountSpec{Type: "bind", Source: res.Value, Target: transferPoint, ReadOnly: readOnly}, nil
	default:
		return dockerapi.MountSpec{}, fmt.Errorf("resource %s cannot be mounted into a helper", res)
	}
}
