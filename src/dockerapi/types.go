package dockerapi

import (
	"context"
	"io"
)

// MountSpec describes one mount attached to a container at creation time.
type MountSpec struct {
	Type     string // "volume" or "bind"
	Source   string // volume name or absolute host path
	Target   string // in-container mount point
	ReadOnly bool
}

// ContainerSpec is everything the core needs to create a container.
type ContainerSpec struct {
	Name      string
	Image     string
	Cmd       []string
	Env       []string
	Labels    map[string]string
	Mounts    []MountSpec
	Network   string // network mode; empty means the runtime default
	OpenStdin bool
}

// MountPoint is one mount observed on an existing container.
type MountPoint struct {
	Type        string // "volume", "bind", or a runtime-specific kind we ignore
	Name        string // volume name, set when Type is "volume"
	Source      string // host path for binds, storage path for volumes
	Destination string // in-container mount point
	ReadWrite   bool
}

// ContainerDetails is the inspected state of a container.
type ContainerDetails struct {
	ID      string
	Name    string
	Image   string
	Env     []string
	Cmd     []string
	Network string
	Labels  map[string]string
	Mounts  []MountPoint
	Running bool
}

// ContainerSummary is one row of a container listing.
type ContainerSummary struct {
	ID     string
	Name   string
	Labels map[string]string
	State  string
}

// VolumeDetails is the inspected state of a named volume.
type VolumeDetails struct {
	Name    string
	Driver  string
	Options map[string]string
}

// AttachStreams carries the hijacked stdio of an attached container.
// Stdin is nil unless the container was created with OpenStdin; closing it
// signals EOF to the contained process. Close releases the underlying
// connection and is safe to call more than once.
type AttachStreams struct {
	Stdin  io.WriteCloser
	Stdout io.Reader

	closer func()
}

func (a *AttachStreams) Close() {
	if a.closer != nil {
		a.closer()
		a.closer = nil
	}
}

// Client is the narrow interface over the container runtime used by the
// core. Keep it limited to what the backup machinery actually calls so the
// fake stays complete.
type Client interface {
	// Ping verifies the runtime API is reachable.
	Ping(ctx context.Context) error

	// Containers
	InspectContainer(ctx context.Context, nameOrID string) (ContainerDetails, error)
	// ListContainers returns containers, all of them when all is true, only
	// running ones otherwise. labelFilters entries are "key" or "key=value".
	ListContainers(ctx context.Context, all bool, labelFilters []string) ([]ContainerSummary, error)
	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	// WaitContainer blocks until the container stops and returns its exit code.
	WaitContainer(ctx context.Context, id string) (int64, error)
	RemoveContainer(ctx context.Context, id string, force bool) error
	// AttachContainer attaches to a created (not yet started) container.
	AttachContainer(ctx context.Context, id string) (*AttachStreams, error)

	// Volumes
	CreateVolume(ctx context.Context, name string) error
	InspectVolume(ctx context.Context, name string) (VolumeDetails, error)

	// Images
	PullImage(ctx context.Context, ref string) error
}
