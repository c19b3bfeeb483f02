// Package errdefs defines the error taxonomy shared by the backup and
// restore machinery. Callers branch with errors.As or the Is* helpers;
// everything else wraps with fmt.Errorf and %w.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError reports a referenced container, volume, or archive that does
// not exist. Never retried.
type NotFoundError struct {
	Resource string // container|volume|archive|descriptor
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Name)
}

// RuntimeUnavailableError reports that the container runtime API could not
// be reached at all.
type RuntimeUnavailableError struct {
	Err error
}

func (e *RuntimeUnavailableError) Error() string {
	return fmt.Sprintf("container runtime unavailable: %v", e.Err)
}

func (e *RuntimeUnavailableError) Unwrap() error { return e.Err }

// TransferError reports a failed mount transfer: the helper command exited
// non-zero or the byte stream broke.
type TransferError struct {
	Resource string // the resource being transferred, e.g. "volume:hello"
	ExitCode int64  // helper exit code, 0 when the failure was not exec-level
	Err      error
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transfer failed for %s: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("transfer failed for %s: helper exited with code %d", e.Resource, e.ExitCode)
}

func (e *TransferError) Unwrap() error { return e.Err }

// MountFailure pairs a failed mount with its cause inside a container backup.
type MountFailure struct {
	Mount string // archive name of the mount (volume name or sanitized bind path)
	Err   error
}

// PartialBackupError reports a container backup where one or more mount
// transfers failed. No descriptor was committed; archives that did succeed
// are retained and independently valid.
type PartialBackupError struct {
	Container string
	Failures  []MountFailure
}

func (e *PartialBackupError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, f.Mount)
	}
	return fmt.Sprintf("backup of container %s failed for mounts [%s]; no descriptor committed",
		e.Container, strings.Join(names, ", "))
}

// RestoreError reports a failed container restore. The partially configured
// container has been removed and was never started.
type RestoreError struct {
	Container string
	Mount     string // empty when the failure was not mount-specific
	Err       error
}

func (e *RestoreError) Error() string {
	if e.Mount != "" {
		return fmt.Sprintf("restore of container %s failed at mount %s: %v", e.Container, e.Mount, e.Err)
	}
	return fmt.Sprintf("restore of container %s failed: %v", e.Container, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsRuntimeUnavailable reports whether err is (or wraps) a
// RuntimeUnavailableError.
func IsRuntimeUnavailable(err error) bool {
	var ru *RuntimeUnavailableError
	return errors.As(err, &ru)
}
