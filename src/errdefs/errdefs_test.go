package errdefs_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"dockyard/src/errdefs"
)

func TestIsNotFoundThroughWrapping(t *testing.T) {
	err := fmt.Errorf("resolving mounts: %w", &errdefs.NotFoundError{Resource: "container", Name: "web"})
	if !errdefs.IsNotFound(err) {
		t.Fatal("expected IsNotFound to see through wrapping")
	}
	if errdefs.IsNotFound(errors.New("boom")) {
		t.Fatal("plain error misclassified as not-found")
	}
}

func TestIsRuntimeUnavailableUnwraps(t *testing.T) {
	cause := errors.New("dial unix /var/run/docker.sock: connect: no such file")
	err := &errdefs.RuntimeUnavailableError{Err: cause}
	if !errdefs.IsRuntimeUnavailable(fmt.Errorf("tick: %w", err)) {
		t.Fatal("expected IsRuntimeUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to expose the cause")
	}
}

func TestPartialBackupErrorNamesFailedMounts(t *testing.T) {
	err := &errdefs.PartialBackupError{
		Container: "nginx",
		Failures: []errdefs.MountFailure{
			{Mount: "hello", Err: errors.New("exit 2")},
			{Mount: "_data", Err: errors.New("stream reset")},
		},
	}
	msg := err.Error()
	for _, want := range []string{"nginx", "hello", "_data", "no descriptor"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error message %q missing %q", msg, want)
		}
	}
}

func TestTransferErrorExitCode(t *testing.T) {
	err := &errdefs.TransferError{Resource: "volume:data", ExitCode: 2}
	if !strings.Contains(err.Error(), "code 2") {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}
