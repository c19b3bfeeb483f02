package mounts_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"dockyard/src/dockerapi"
	"dockyard/src/mounts"
	"dockyard/src/resource"
)

func inspect(t *testing.T, fake *dockerapi.FakeClient, name string) dockerapi.ContainerDetails {
	t.Helper()
	info, err := fake.InspectContainer(context.Background(), name)
	if err != nil {
		t.Fatal(err)
	}
	return info
}

func TestResolveClassifiesAndNames(t *testing.T) {
	fake := dockerapi.NewFake()
	ctx := context.Background()
	_, err := fake.CreateContainer(ctx, dockerapi.ContainerSpec{
		Name:  "web",
		Image: "nginx:latest",
		Mounts: []dockerapi.MountSpec{
			{Type: "bind", Source: "/srv/data", Target: "/data"},
			{Type: "volume", Source: "hello", Target: "/var/lib/hello", ReadOnly: true},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	info := inspect(t, fake, "web")
	got, err := mounts.Resolve(ctx, fake, "web", info.Mounts, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(got))
	}
	bind, vol := got[0], got[1]
	if bind.Kind != resource.KindBind || bind.Source != "/srv/data" || bind.Destination != "/data" {
		t.Fatalf("bind descriptor: %+v", bind)
	}
	if bind.ArchiveName() != "_data" {
		t.Fatalf("bind archive name: %s", bind.ArchiveName())
	}
	if vol.Kind != resource.KindVolume || vol.Source != "hello" || !vol.ReadOnly {
		t.Fatalf("volume descriptor: %+v", vol)
	}
	if vol.ArchiveName() != "hello" {
		t.Fatalf("volume archive name: %s", vol.ArchiveName())
	}
}

func TestResolveSkipsSocketAndNetworkVolumes(t *testing.T) {
	fake := dockerapi.NewFake()
	ctx := context.Background()
	fake.CreateVolume(ctx, "nfsvol")
	fake.VolumeMeta["nfsvol"] = dockerapi.VolumeDetails{
		Name: "nfsvol", Driver: "local", Options: map[string]string{"type": "nfs"},
	}
	_, err := fake.CreateContainer(ctx, dockerapi.ContainerSpec{
		Name: "agent",
		Mounts: []dockerapi.MountSpec{
			{Type: "bind", Source: "/var/run/docker.sock", Target: "/var/run/docker.sock"},
			{Type: "volume", Source: "nfsvol", Target: "/remote"},
			{Type: "tmpfs", Source: "", Target: "/scratch"},
			{Type: "volume", Source: "keep", Target: "/keep"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	info := inspect(t, fake, "agent")
	got, err := mounts.Resolve(ctx, fake, "agent", info.Mounts, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Source != "keep" {
		t.Fatalf("expected only the plain volume, got %+v", got)
	}
}

func TestResolveUsesOnlyProvidedMounts(t *testing.T) {
	fake := dockerapi.NewFake()
	ctx := context.Background()
	fake.CreateVolume(ctx, "snapshotted")

	// The mount list comes from the caller's inspection; the resolver never
	// re-inspects, so the container's current runtime state is irrelevant.
	points := []dockerapi.MountPoint{
		{Type: "volume", Name: "snapshotted", Source: "snapshotted", Destination: "/data", ReadWrite: true},
	}
	got, err := mounts.Resolve(ctx, fake, "gone", points, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Source != "snapshotted" {
		t.Fatalf("expected the captured mount, got %+v", got)
	}
}

func TestResolveNoMountsIsEmptyNotError(t *testing.T) {
	fake := dockerapi.NewFake()
	got, err := mounts.Resolve(context.Background(), fake, "bare", nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty list, got %+v", got)
	}
}
