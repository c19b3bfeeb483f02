// Package snapshot backs up and restores whole containers: every eligible
// mount is archived, then a descriptor capturing the container's
// configuration is committed so the container can be recreated elsewhere.
package snapshot

import (
	"encoding/json"
	"fmt"
	"io"

	"dockyard/src/resource"
)

// SchemaVersion is the current descriptor format version. Readers reject
// versions they do not know.
const SchemaVersion = 1

// Descriptor is the JSON document committed after a successful container
// backup. It holds everything needed to recreate the container and to locate
// the archive of each of its mounts.
type Descriptor struct {
	SchemaVersion int           `json:"schemaVersion"`
	Name          string        `json:"name"`
	Image         string        `json:"image"`
	Env           []string      `json:"env,omitempty"`
	Command       []string      `json:"command,omitempty"`
	Network       string        `json:"network,omitempty"`
	Mounts        []MountRecord `json:"mounts"`
}

// MountRecord is one mount of the snapshotted container. Mounts that were
// skipped during backup (runtime sockets, network volumes) do not appear.
type MountRecord struct {
	Kind                resource.Kind `json:"kind"` // "volume" or "bind"
	Source              string        `json:"source"`
	Destination         string        `json:"destination"`
	ReadOnly            bool          `json:"readOnly,omitempty"`
	ArchiveRelativePath string        `json:"archiveRelativePath"`
}

// Target returns the resource the record's archive restores into.
func (m MountRecord) Target() resource.Ref {
	if m.Kind == resource.KindVolume {
		return resource.Volume(m.Source)
	}
	return resource.Bind(m.Source)
}

// Encode writes the descriptor as indented JSON.
func (d Descriptor) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// DecodeDescriptor reads and validates a descriptor document.
func DecodeDescriptor(r io.Reader) (Descriptor, error) {
	var d Descriptor
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return Descriptor{}, fmt.Errorf("decoding descriptor: %w", err)
	}
	if d.SchemaVersion != SchemaVersion {
		return Descriptor{}, fmt.Errorf("unsupported descriptor schema version %d", d.SchemaVersion)
	}
	if d.Name == "" || d.Image == "" {
		return Descriptor{}, fmt.Errorf("descriptor missing name or image")
	}
	for _, m := range d.Mounts {
		if m.Kind != resource.KindVolume && m.Kind != resource.KindBind {
			return Descriptor{}, fmt.Errorf("descriptor mount %s has unsupported kind %q", m.Destination, m.Kind)
		}
	}
	return d, nil
}
