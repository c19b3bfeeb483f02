package destination

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind is where archive bytes live.
type Kind string

const (
	KindDirectory Kind = "directory"
	KindVolume    Kind = "volume"
)

// Ref names a backup destination (or source, when restoring): a local
// directory reachable by this process, or a named volume that must be
// reached through helper containers.
type Ref struct {
	Kind Kind
	// Root is the absolute directory path or the volume name.
	Root string
}

// ParseRef validates a destination from its CLI form: a type selector
// ("directory" or "volume") plus a path or volume name.
func ParseRef(kind, value string) (Ref, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Ref{}, fmt.Errorf("destination value must not be empty")
	}
	switch Kind(kind) {
	case KindDirectory:
		clean := filepath.Clean(value)
		if !filepath.IsAbs(clean) {
			return Ref{}, fmt.Errorf("directory destination must be an absolute path: %q", value)
		}
		return Ref{Kind: KindDirectory, Root: clean}, nil
	case KindVolume:
		if strings.ContainsAny(value, "/ ") {
			return Ref{}, fmt.Errorf("invalid volume name %q", value)
		}
		return Ref{Kind: KindVolume, Root: value}, nil
	default:
		return Ref{}, fmt.Errorf("unsupported destination type %q (expected directory or volume)", kind)
	}
}

func (r Ref) String() string {
	if r.Kind == KindDirectory {
		return "dir:" + r.Root
	}
	return "volume:" + r.Root
}
