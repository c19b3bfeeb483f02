package snapshot

import (
	"context"
	"fmt"

	"dockyard/src/dockerapi"
	"dockyard/src/errdefs"
)

// RestoreContainer recreates a container from the descriptor at relPath
// under the new name. Mount archives are restored sequentially into the
// recreated container's volumes and binds; the container is started only
// after every mount succeeded. On any failure the half-built container is
// removed and a RestoreError is returned, so a failed restore never leaves a
// runnable container behind.
//
// When replace is true an existing container with the same name is removed
// first; otherwise it is an error.
func (m *Manager) RestoreContainer(ctx context.Context, relPath, name string, replace bool) error {
	rc, err := m.engine.Destination().Open(ctx, relPath)
	if err != nil {
		return &errdefs.RestoreError{Container: name, Err: err}
	}
	desc, err := DecodeDescriptor(rc)
	rc.Close()
	if err != nil {
		return &errdefs.RestoreError{Container: name, Err: err}
	}

	if _, err := m.client.InspectContainer(ctx, name); err == nil {
		if !replace {
			return &errdefs.RestoreError{Container: name, Err: fmt.Errorf("container already exists")}
		}
		if err := m.client.RemoveContainer(ctx, name, true); err != nil {
			return &errdefs.RestoreError{Container: name, Err: fmt.Errorf("removing existing container: %w", err)}
		}
	} else if !errdefs.IsNotFound(err) {
		return &errdefs.RestoreError{Container: name, Err: err}
	}

	if err := m.client.PullImage(ctx, desc.Image); err != nil {
		return &errdefs.RestoreError{Container: name, Err: fmt.Errorf("pulling %s: %w", desc.Image, err)}
	}

	specMounts := make([]dockerapi.MountSpec, 0, len(desc.Mounts))
	for _, rec := range desc.Mounts {
		specMounts = append(specMounts, dockerapi.MountSpec{
			Type:     string(rec.Kind),
			Source:   rec.Source,
			Target:   rec.Destination,
			ReadOnly: rec.ReadOnly,
		})
	}
	id, err := m.client.CreateContainer(ctx, dockerapi.ContainerSpec{
		Name:    name,
		Image:   desc.Image,
		Cmd:     desc.Command,
		Env:     desc.Env,
		Network: desc.Network,
		Mounts:  specMounts,
	})
	if err != nil {
		return &errdefs.RestoreError{Container: name, Err: err}
	}

	// The container exists but has not run; tear it down if any mount fails.
	fail := func(mount string, cause error) error {
		if rmErr := m.client.RemoveContainer(context.WithoutCancel(ctx), id, true); rmErr != nil {
			m.log.Warn().Str("container", name).Err(rmErr).Msg("failed to remove container after restore failure")
		}
		return &errdefs.RestoreError{Container: name, Mount: mount, Err: cause}
	}

	for _, rec := range desc.Mounts {
		if rec.ArchiveRelativePath == "" {
			continue
		}
		if err := m.engine.RestoreMount(ctx, rec.ArchiveRelativePath, rec.Target()); err != nil {
			return fail(rec.Destination, err)
		}
		m.log.Debug().Str("container", name).Str("mount", rec.Destination).Msg("mount restored")
	}

	if err := m.client.StartContainer(ctx, id); err != nil {
		return fail("", err)
	}
	m.log.Info().Str("container", name).Str("descriptor", relPath).Msg("container restored")
	return nil
}
