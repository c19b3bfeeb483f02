package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"dockyard/src/dockerapi"
	"dockyard/src/errdefs"
	"dockyard/src/layout"
	"dockyard/src/mounts"
	"dockyard/src/resource"
	"dockyard/src/transfer"
)

// DefaultConcurrency bounds how many mount transfers of one container run at
// once.
const DefaultConcurrency = 4

// Manager orchestrates container-level backups and restores on top of the
// per-mount transfer engine.
type Manager struct {
	client      dockerapi.Client
	engine      *transfer.Engine
	log         zerolog.Logger
	concurrency int
}

func NewManager(client dockerapi.Client, engine *transfer.Engine, concurrency int, log zerolog.Logger) *Manager {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Manager{
		client:      client,
		engine:      engine,
		log:         log.With().Str("component", "snapshot").Logger(),
		concurrency: concurrency,
	}
}

// MountFilter restricts which of a container's mounts are backed up. Volume
// mounts are matched by volume name, bind mounts by in-container
// destination. An empty Include list admits everything.
type MountFilter struct {
	Include []string
	Exclude []string
}

func (f MountFilter) admits(md mounts.Descriptor) bool {
	key := md.Source
	if md.Kind == resource.KindBind {
		key = md.Destination
	}
	if len(f.Include) > 0 && !containsString(f.Include, key) {
		return false
	}
	return !containsString(f.Exclude, key)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Result is a committed container backup.
type Result struct {
	Container      string
	DescriptorPath string
	Archives       []transfer.ArchiveEntry
}

// BackupContainer archives every eligible mount of the named container, then
// commits the descriptor. All mounts are attempted even when some fail; on
// any failure no descriptor is committed and the error is a
// PartialBackupError listing what broke. Archives of mounts that did succeed
// are retained and usable on their own.
func (m *Manager) BackupContainer(ctx context.Context, name string, filter MountFilter, now time.Time) (Result, error) {
	info, err := m.client.InspectContainer(ctx, name)
	if err != nil {
		return Result{}, fmt.Errorf("backing up container %s: %w", name, err)
	}
	resolved, err := mounts.Resolve(ctx, m.client, name, info.Mounts, m.log)
	if err != nil {
		return Result{}, fmt.Errorf("backing up container %s: %w", name, err)
	}

	var selected []mounts.Descriptor
	for _, md := range resolved {
		if !filter.admits(md) {
			m.log.Debug().Str("container", name).Str("mount", md.ArchiveName()).Msg("mount excluded by filter")
			continue
		}
		selected = append(selected, md)
	}

	type outcome struct {
		mount mounts.Descriptor
		entry transfer.ArchiveEntry
		err   error
	}
	outcomes := make([]outcome, len(selected))

	// Failures are collected, not propagated, so sibling transfers run to
	// completion instead of being cancelled mid-stream.
	g := new(errgroup.Group)
	g.SetLimit(m.concurrency)
	for i, md := range selected {
		i, md := i, md
		g.Go(func() error {
			entry, err := m.engine.BackupMount(ctx, md, now)
			outcomes[i] = outcome{mount: md, entry: entry, err: err}
			return nil
		})
	}
	g.Wait()

	var failures []errdefs.MountFailure
	records := make([]MountRecord, 0, len(selected))
	var archives []transfer.ArchiveEntry
	for _, oc := range outcomes {
		if oc.err != nil {
			m.log.Error().Str("container", name).Str("mount", oc.mount.ArchiveName()).Err(oc.err).Msg("mount backup failed")
			failures = append(failures, errdefs.MountFailure{Mount: oc.mount.ArchiveName(), Err: oc.err})
			continue
		}
		records = append(records, MountRecord{
			Kind:                oc.mount.Kind,
			Source:              oc.mount.Source,
			Destination:         oc.mount.Destination,
			ReadOnly:            oc.mount.ReadOnly,
			ArchiveRelativePath: oc.entry.RelPath,
		})
		archives = append(archives, oc.entry)
	}
	if len(failures) > 0 {
		sort.Slice(failures, func(i, j int) bool { return failures[i].Mount < failures[j].Mount })
		return Result{Container: name, Archives: archives}, &errdefs.PartialBackupError{Container: name, Failures: failures}
	}

	desc := Descriptor{
		SchemaVersion: SchemaVersion,
		Name:          info.Name,
		Image:         info.Image,
		Env:           info.Env,
		Command:       info.Cmd,
		Network:       info.Network,
		Mounts:        records,
	}
	var buf bytes.Buffer
	if err := desc.Encode(&buf); err != nil {
		return Result{}, fmt.Errorf("backing up container %s: %w", name, err)
	}
	descPath := layout.ContainerDescriptorPath(name, now)
	if err := m.engine.Destination().Store(ctx, descPath, &buf); err != nil {
		return Result{}, fmt.Errorf("committing descriptor for %s: %w", name, err)
	}
	m.log.Info().Str("container", name).Str("descriptor", descPath).Int("mounts", len(records)).Msg("container backed up")
	return Result{Container: name, DescriptorPath: descPath, Archives: archives}, nil
}
