package destination_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"dockyard/src/destination"
	"dockyard/src/dockerapi"
	"dockyard/src/errdefs"
	"dockyard/src/helper"
)

func TestParseRef(t *testing.T) {
	if _, err := destination.ParseRef("directory", "relative/path"); err == nil {
		t.Fatal("expected error for relative directory path")
	}
	if _, err := destination.ParseRef("volume", "has space"); err == nil {
		t.Fatal("expected error for invalid volume name")
	}
	if _, err := destination.ParseRef("s3", "/x"); err == nil {
		t.Fatal("expected error for unsupported type")
	}
	ref, err := destination.ParseRef("directory", "/backups//nested/")
	if err != nil {
		t.Fatal(err)
	}
	if ref.Root != "/backups/nested" {
		t.Fatalf("path not cleaned: %s", ref.Root)
	}
}

func TestDirectoryStoreIsAtomicAndAppendOnly(t *testing.T) {
	root := t.TempDir()
	dest, err := destination.New(destination.Ref{Kind: destination.KindDirectory, Root: root}, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := dest.Store(ctx, "volumes/v/20250102T030405Z.tgz", strings.NewReader("archive-bytes")); err != nil {
		t.Fatalf("store: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(root, "volumes", "v", "20250102T030405Z.tgz"))
	if err != nil || string(b) != "archive-bytes" {
		t.Fatalf("committed content: %v %q", err, b)
	}

	// Same key again must not overwrite.
	if err := dest.Store(ctx, "volumes/v/20250102T030405Z.tgz", strings.NewReader("other")); err == nil {
		t.Fatal("expected overwrite refusal")
	}

	// No partial files remain.
	ents, _ := os.ReadDir(filepath.Join(root, "volumes", "v"))
	for _, e := range ents {
		if strings.HasPrefix(e.Name(), ".partial") {
			t.Fatalf("partial artifact left behind: %s", e.Name())
		}
	}
}

func TestDirectoryStoreFailureLeavesNothingAddressable(t *testing.T) {
	root := t.TempDir()
	dest, err := destination.New(destination.Ref{Kind: destination.KindDirectory, Root: root}, nil)
	if err != nil {
		t.Fatal(err)
	}
	failing := io.MultiReader(strings.NewReader("partial"), &failReader{})
	if err := dest.Store(context.Background(), "binds/_data/20250102T030405Z.tgz", failing); err == nil {
		t.Fatal("expected store failure")
	}
	if _, err := os.Stat(filepath.Join(root, "binds", "_data", "20250102T030405Z.tgz")); !os.IsNotExist(err) {
		t.Fatal("failed store left an addressable artifact")
	}
}

type failReader struct{}

func (*failReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestDirectoryOpenMissingIsNotFound(t *testing.T) {
	dest, err := destination.New(destination.Ref{Kind: destination.KindDirectory, Root: t.TempDir()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = dest.Open(context.Background(), "volumes/v/nope.tgz")
	if !errdefs.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestVolumeDestinationRoundTrip(t *testing.T) {
	fake := dockerapi.NewFake()
	runner := helper.NewRunner(fake, "", zerolog.Nop())
	dest, err := destination.New(destination.Ref{Kind: destination.KindVolume, Root: "backups"}, runner)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	content := []byte("mediated archive bytes")
	if err := dest.Store(ctx, "volumes/hello/20250102T030405Z.tgz", bytes.NewReader(content)); err != nil {
		t.Fatalf("store: %v", err)
	}

	rc, err := dest.Open(ctx, "volumes/hello/20250102T030405Z.tgz")
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("round trip mismatch: %q", got)
	}
	if n := len(fake.Containers); n != 0 {
		t.Fatalf("helpers leaked: %d", n)
	}
}

func TestVolumeStoreIsAppendOnly(t *testing.T) {
	fake := dockerapi.NewFake()
	runner := helper.NewRunner(fake, "", zerolog.Nop())
	dest, err := destination.New(destination.Ref{Kind: destination.KindVolume, Root: "backups"}, runner)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	key := "volumes/hello/20250102T030405Z.tgz"
	if err := dest.Store(ctx, key, strings.NewReader("first")); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := dest.Store(ctx, key, strings.NewReader("second")); err == nil {
		t.Fatal("expected overwrite refusal")
	}
	if got := fake.VolumeFiles("backups")[key]; string(got) != "first" {
		t.Fatalf("archive content changed: %q", got)
	}
	if n := len(fake.Containers); n != 0 {
		t.Fatalf("helpers leaked: %d", n)
	}
}

func TestVolumeOpenMissingSurfacesNotFound(t *testing.T) {
	fake := dockerapi.NewFake()
	fake.CreateVolume(context.Background(), "backups")
	runner := helper.NewRunner(fake, "", zerolog.Nop())
	dest, _ := destination.New(destination.Ref{Kind: destination.KindVolume, Root: "backups"}, runner)

	rc, err := dest.Open(context.Background(), "containers/none/x.json")
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	_, err = io.ReadAll(rc)
	if !errdefs.IsNotFound(err) {
		t.Fatalf("expected NotFound on read, got %v", err)
	}
}

func TestListEntries(t *testing.T) {
	root := t.TempDir()
	mk := func(parts ...string) {
		p := filepath.Join(append([]string{root}, parts...)...)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mk("volumes", "hello", "20250102T030405Z.tgz")
	mk("volumes", "hello", "20250103T030405Z.tgz")
	mk("binds", "_data", "20250102T030405Z.tgz")
	mk("containers", "nginx", "20250102T030405Z.json")

	entries, err := destination.ListEntries(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[0].Type != "bind" || entries[0].Name != "_data" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Type != "container" || entries[1].Name != "nginx" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
	if entries[2].Timestamp != "20250102T030405Z" || entries[3].Timestamp != "20250103T030405Z" {
		t.Fatalf("timestamps not sorted: %+v %+v", entries[2], entries[3])
	}
}
