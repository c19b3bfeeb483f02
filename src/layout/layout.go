// Package layout maps resource identities and timestamps to the on-disk
// backup tree:
//
//	<root>/volumes/<volume-name>/<timestamp>.tgz
//	<root>/binds/<sanitized-destination-path>/<timestamp>.tgz
//	<root>/containers/<container-name>/<timestamp>.json
//
// Paths are slash-separated and relative to the destination root; the same
// strings are used on the local filesystem and inside helper containers.
package layout

import (
	"path"
	"strings"
	"time"
)

const (
	VolumesDir    = "volumes"
	BindsDir      = "binds"
	ContainersDir = "containers"

	ArchiveSuffix    = ".tgz"
	DescriptorSuffix = ".json"
)

// TimestampFormat is the UTC archive key format (ISO 8601 basic form, safe
// as a filename on every platform).
const TimestampFormat = "20060102T150405Z"

// Timestamp renders t as an archive key.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// SanitizeBindPath turns an in-container mount destination into a stable,
// filesystem-safe directory name: /data -> _data. The destination path is
// used rather than the host source path because the host path is neither
// stable nor necessarily visible to the restoring host.
func SanitizeBindPath(destination string) string {
	return strings.ReplaceAll(destination, "/", "_")
}

// VolumeArchivePath returns the root-relative archive path for a named
// volume at time t.
func VolumeArchivePath(name string, t time.Time) string {
	return path.Join(VolumesDir, name, Timestamp(t)+ArchiveSuffix)
}

// BindArchivePath returns the root-relative archive path for a bind mount
// identified by its in-container destination.
func BindArchivePath(destination string, t time.Time) string {
	return path.Join(BindsDir, SanitizeBindPath(destination), Timestamp(t)+ArchiveSuffix)
}

// ContainerDescriptorPath returns the root-relative path of a container
// snapshot descriptor.
func ContainerDescriptorPath(name string, t time.Time) string {
	return path.Join(ContainersDir, name, Timestamp(t)+DescriptorSuffix)
}
