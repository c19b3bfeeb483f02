package snapshot_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"dockyard/src/destination"
	"dockyard/src/dockerapi"
	"dockyard/src/errdefs"
	"dockyard/src/helper"
	"dockyard/src/snapshot"
	"dockyard/src/transfer"
)

var testTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

type fixture struct {
	fake *dockerapi.FakeClient
	mgr  *snapshot.Manager
	root string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := dockerapi.NewFake()
	root := t.TempDir()
	runner := helper.NewRunner(fake, "", zerolog.Nop())
	dest, err := destination.New(destination.Ref{Kind: destination.KindDirectory, Root: root}, runner)
	if err != nil {
		t.Fatal(err)
	}
	eng := transfer.NewEngine(fake, runner, dest, zerolog.Nop())
	return &fixture{
		fake: fake,
		mgr:  snapshot.NewManager(fake, eng, 2, zerolog.Nop()),
		root: root,
	}
}

func (fx *fixture) createWebContainer(t *testing.T) {
	t.Helper()
	fx.fake.SetVolumeFile("data", "db.sqlite", []byte("rows"))
	fx.fake.SetBindFile("/srv/conf", "app.conf", []byte("listen 80"))
	_, err := fx.fake.CreateContainer(context.Background(), dockerapi.ContainerSpec{
		Name:    "web",
		Image:   "nginx:1.27",
		Cmd:     []string{"nginx", "-g", "daemon off;"},
		Env:     []string{"TZ=UTC"},
		Network: "bridge",
		Mounts: []dockerapi.MountSpec{
			{Type: "volume", Source: "data", Target: "/var/lib/data"},
			{Type: "bind", Source: "/srv/conf", Target: "/etc/app", ReadOnly: true},
			{Type: "bind", Source: "/var/run/docker.sock", Target: "/var/run/docker.sock"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBackupContainerCommitsDescriptorLast(t *testing.T) {
	fx := newFixture(t)
	fx.createWebContainer(t)
	ctx := context.Background()

	res, err := fx.mgr.BackupContainer(ctx, "web", snapshot.MountFilter{}, testTime)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if res.DescriptorPath != "containers/web/20250102T030405Z.json" {
		t.Fatalf("descriptor path: %s", res.DescriptorPath)
	}
	if len(res.Archives) != 2 {
		t.Fatalf("expected 2 archives, got %d", len(res.Archives))
	}

	b, err := os.ReadFile(filepath.Join(fx.root, "containers", "web", "20250102T030405Z.json"))
	if err != nil {
		t.Fatalf("descriptor not committed: %v", err)
	}
	desc, err := snapshot.DecodeDescriptor(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if desc.Name != "web" || desc.Image != "nginx:1.27" || desc.Network != "bridge" {
		t.Fatalf("descriptor identity: %+v", desc)
	}
	if len(desc.Mounts) != 2 {
		t.Fatalf("expected 2 mount records, got %+v", desc.Mounts)
	}
	for _, rec := range desc.Mounts {
		if rec.ArchiveRelativePath == "" {
			t.Fatalf("mount record missing archive path: %+v", rec)
		}
		if _, err := os.Stat(filepath.Join(fx.root, filepath.FromSlash(rec.ArchiveRelativePath))); err != nil {
			t.Fatalf("recorded archive missing: %v", err)
		}
		if strings.Contains(rec.Source, "docker.sock") {
			t.Fatal("socket bind must not be recorded")
		}
	}
}

func TestBackupContainerMountFilter(t *testing.T) {
	fx := newFixture(t)
	fx.fake.SetVolumeFile("keep", "a", []byte("a"))
	fx.fake.SetVolumeFile("skip", "b", []byte("b"))
	ctx := context.Background()
	_, err := fx.fake.CreateContainer(ctx, dockerapi.ContainerSpec{
		Name:  "app",
		Image: "app:1",
		Mounts: []dockerapi.MountSpec{
			{Type: "volume", Source: "keep", Target: "/keep"},
			{Type: "volume", Source: "skip", Target: "/skip"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := fx.mgr.BackupContainer(ctx, "app", snapshot.MountFilter{Include: []string{"keep"}}, testTime)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if len(res.Archives) != 1 || res.Archives[0].Resource.Value != "keep" {
		t.Fatalf("filter not applied: %+v", res.Archives)
	}
	if _, err := os.Stat(filepath.Join(fx.root, "volumes", "skip")); !os.IsNotExist(err) {
		t.Fatal("excluded volume was archived")
	}
}

func TestBackupContainerPartialFailure(t *testing.T) {
	fx := newFixture(t)
	fx.createWebContainer(t)
	fx.fake.FailExec["data"] = 2
	ctx := context.Background()

	res, err := fx.mgr.BackupContainer(ctx, "web", snapshot.MountFilter{}, testTime)
	var pbe *errdefs.PartialBackupError
	if !errors.As(err, &pbe) {
		t.Fatalf("expected PartialBackupError, got %v", err)
	}
	if len(pbe.Failures) != 1 || pbe.Failures[0].Mount != "data" {
		t.Fatalf("failures: %+v", pbe.Failures)
	}
	// The bind archive succeeded and is retained.
	if len(res.Archives) != 1 {
		t.Fatalf("expected the surviving archive, got %+v", res.Archives)
	}
	// No descriptor may exist after a partial backup.
	if _, statErr := os.Stat(filepath.Join(fx.root, "containers")); !os.IsNotExist(statErr) {
		t.Fatal("descriptor committed despite mount failure")
	}
}

func TestBackupContainerMissing(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.mgr.BackupContainer(context.Background(), "ghost", snapshot.MountFilter{}, testTime)
	if !errdefs.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRestoreContainerRoundTrip(t *testing.T) {
	fx := newFixture(t)
	fx.createWebContainer(t)
	ctx := context.Background()

	res, err := fx.mgr.BackupContainer(ctx, "web", snapshot.MountFilter{}, testTime)
	if err != nil {
		t.Fatal(err)
	}

	// Simulate a fresh host: drop the data behind the mounts.
	delete(fx.fake.Volumes, "data")
	delete(fx.fake.Binds, "/srv/conf")

	if err := fx.mgr.RestoreContainer(ctx, res.DescriptorPath, "web2", false); err != nil {
		t.Fatalf("restore: %v", err)
	}

	info, err := fx.fake.InspectContainer(ctx, "web2")
	if err != nil {
		t.Fatal(err)
	}
	if !info.Running {
		t.Fatal("restored container not started")
	}
	if info.Image != "nginx:1.27" || info.Network != "bridge" {
		t.Fatalf("restored config: %+v", info)
	}
	if len(info.Mounts) != 2 {
		t.Fatalf("restored mounts: %+v", info.Mounts)
	}
	if got := fx.fake.VolumeFiles("data"); !bytes.Equal(got["db.sqlite"], []byte("rows")) {
		t.Fatalf("volume data not restored: %v", got)
	}
	if got := fx.fake.BindFiles("/srv/conf"); !bytes.Equal(got["app.conf"], []byte("listen 80")) {
		t.Fatalf("bind data not restored: %v", got)
	}
	if !fx.fake.Images["nginx:1.27"] {
		t.Fatal("image was not pulled")
	}
}

func TestRestoreContainerMissingDescriptor(t *testing.T) {
	fx := newFixture(t)
	err := fx.mgr.RestoreContainer(context.Background(), "containers/none/x.json", "web2", false)
	var re *errdefs.RestoreError
	if !errors.As(err, &re) {
		t.Fatalf("expected RestoreError, got %v", err)
	}
	if !errdefs.IsNotFound(err) {
		t.Fatalf("expected NotFound cause, got %v", err)
	}
}

func TestRestoreContainerNameConflict(t *testing.T) {
	fx := newFixture(t)
	fx.createWebContainer(t)
	ctx := context.Background()

	res, err := fx.mgr.BackupContainer(ctx, "web", snapshot.MountFilter{}, testTime)
	if err != nil {
		t.Fatal(err)
	}

	if err := fx.mgr.RestoreContainer(ctx, res.DescriptorPath, "web", false); err == nil {
		t.Fatal("expected conflict without replace")
	}
	if err := fx.mgr.RestoreContainer(ctx, res.DescriptorPath, "web", true); err != nil {
		t.Fatalf("replace restore: %v", err)
	}
	if _, err := fx.fake.InspectContainer(ctx, "web"); err != nil {
		t.Fatalf("replaced container missing: %v", err)
	}
}

func TestRestoreContainerFailureRemovesContainer(t *testing.T) {
	fx := newFixture(t)
	fx.createWebContainer(t)
	ctx := context.Background()

	res, err := fx.mgr.BackupContainer(ctx, "web", snapshot.MountFilter{}, testTime)
	if err != nil {
		t.Fatal(err)
	}
	fx.fake.FailExec["data"] = 2

	err = fx.mgr.RestoreContainer(ctx, res.DescriptorPath, "web2", false)
	var re *errdefs.RestoreError
	if !errors.As(err, &re) {
		t.Fatalf("expected RestoreError, got %v", err)
	}
	if re.Mount == "" {
		t.Fatalf("expected mount-level failure: %+v", re)
	}
	if _, inspectErr := fx.fake.InspectContainer(ctx, "web2"); !errdefs.IsNotFound(inspectErr) {
		t.Fatal("failed restore left the container behind")
	}
}
