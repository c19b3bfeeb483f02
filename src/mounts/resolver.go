// Package mounts inspects a container's mount topology and classifies each
// mount into an addressable backup unit.
package mounts

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"dockyard/src/dockerapi"
	"dockyard/src/layout"
	"dockyard/src/resource"
)

// dockerSocket is never backed up: it is runtime plumbing, not data.
const dockerSocket = "/var/run/docker.sock"

// Descriptor is one classified mount, captured once and never mutated.
type Descriptor struct {
	Kind        resource.Kind // KindVolume or KindBind
	Source      string        // volume name or host path
	Destination string        // in-container mount point
	ReadOnly    bool
}

// Resource returns the transferable identity behind the mount.
func (d Descriptor) Resource() resource.Ref {
	if d.Kind == resource.KindVolume {
		return resource.Volume(d.Source)
	}
	return resource.Bind(d.Source)
}

// ArchiveName is the stable per-mount name used in the backup tree: the
// volume name, or the sanitized in-container destination for binds.
func (d Descriptor) ArchiveName() string {
	if d.Kind == resource.KindVolume {
		return d.Source
	}
	return layout.SanitizeBindPath(d.Destination)
}

// Resolve classifies a container's observed mounts, in the order the
// runtime reported them. The caller passes the mount list from its own
// inspection so config capture and mount resolution see one consistent
// instant; containerName is only used for error context. A container with
// no mounts yields an empty list. Mounts that cannot or should not be
// backed up (runtime socket binds, network-backed volumes, exotic mount
// types) are skipped, not errors.
func Resolve(ctx context.Context, client dockerapi.Client, containerName string, points []dockerapi.MountPoint, log zerolog.Logger) ([]Descriptor, error) {
	var out []Descriptor
	for _, mp := range points {
		switch mp.Type {
		case "volume":
			skip, err := isNetworkVolume(ctx, client, mp.Name)
			if err != nil {
				return nil, fmt.Errorf("resolving mounts of %s: %w", containerName, err)
			}
			if skip {
				log.Info().Str("volume", mp.Name).Msg("skipping network volume")
				continue
			}
			out = append(out, Descriptor{
				Kind:        resource.KindVolume,
				Source:      mp.Name,
				Destination: mp.Destination,
				ReadOnly:    !mp.ReadWrite,
			})
		case "bind":
			if mp.Source == dockerSocket {
				log.Info().Str("bind", mp.Source).Msg("skipping runtime socket bind")
				continue
			}
			out = append(out, Descriptor{
				Kind:        resource.KindBind,
				Source:      mp.Source,
				Destination: mp.Destination,
				ReadOnly:    !mp.ReadWrite,
			})
		default:
			log.Info().Str("type", mp.Type).Str("destination", mp.Destination).Msg("skipping unsupported mount type")
		}
	}
	return out, nil
}

// isNetworkVolume reports whether the volume's driver options declare a
// network filesystem; those are not captured (their data lives elsewhere).
func isNetworkVolume(ctx context.Context, client dockerapi.Client, name string) (bool, error) {
	details, err := client.InspectVolume(ctx, name)
	if err != nil {
		return false, err
	}
	switch details.Options["type"] {
	case "nfs", "nfs4":
		return true, nil
	}
	return false, nil
}
