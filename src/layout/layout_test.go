package layout_test

import (
	"testing"
	"time"

	"dockyard/src/layout"
)

func TestArchivePaths(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	if got := layout.VolumeArchivePath("hello", ts); got != "volumes/hello/20250102T030405Z.tgz" {
		t.Fatalf("volume path: %s", got)
	}
	if got := layout.BindArchivePath("/data", ts); got != "binds/_data/20250102T030405Z.tgz" {
		t.Fatalf("bind path: %s", got)
	}
	if got := layout.ContainerDescriptorPath("nginx", ts); got != "containers/nginx/20250102T030405Z.json" {
		t.Fatalf("descriptor path: %s", got)
	}
}

func TestTimestampIsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	local := time.Date(2025, 6, 1, 5, 0, 0, 0, loc)
	if got := layout.Timestamp(local); got != "20250601T000000Z" {
		t.Fatalf("timestamp not normalized to UTC: %s", got)
	}
}

func TestSanitizeBindPath(t *testing.T) {
	cases := map[string]string{
		"/data":          "_data",
		"/var/lib/mysql": "_var_lib_mysql",
		"/":              "_",
	}
	for in, want := range cases {
		if got := layout.SanitizeBindPath(in); got != want {
			t.Fatalf("sanitize %q: got %q, want %q", in, got, want)
		}
	}
}

func TestDistinctTimestampsDistinctPaths(t *testing.T) {
	t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	t2 := t1.Add(time.Second)
	if layout.VolumeArchivePath("v", t1) == layout.VolumeArchivePath("v", t2) {
		t.Fatal("expected distinct archive paths for distinct timestamps")
	}
}
