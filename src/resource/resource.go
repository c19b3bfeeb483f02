package resource

import "fmt"

// Kind identifies what a Ref points at.
type Kind string

const (
	KindVolume    Kind = "volume"
	KindBind      Kind = "bind"
	KindDirectory Kind = "directory"
	KindContainer Kind = "container"
)

// Ref is the immutable identity of a backed-up resource. Value is the volume
// name for volumes and containers, and an absolute host path for binds and
// directories.
type Ref struct {
	Kind  Kind
	Value string
}

func Volume(name string) Ref    { return Ref{Kind: KindVolume, Value: name} }
func Bind(hostPath string) Ref  { return Ref{Kind: KindBind, Value: hostPath} }
func Directory(path string) Ref { return Ref{Kind: KindDirectory, Value: path} }
func Container(name string) Ref { return Ref{Kind: KindContainer, Value: name} }

func (r Ref) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.Value)
}

// IsZero reports whether the ref carries no identity.
func (r Ref) IsZero() bool {
	return r.Kind == "" && r.Value == ""
}
