// Package watch runs scheduled backups of every eligible running container.
// Ticks come from a cron expression; each tick backs up the containers that
// are not excluded, opted out, or already being backed up.
package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"dockyard/src/dockerapi"
	"dockyard/src/helper"
	"dockyard/src/snapshot"
)

// EnabledLabel opts a container out of scheduled backups when set to
// "false". Absence means enabled.
const EnabledLabel = "com.github.aig787.dockyard.enabled"

// DefaultCron runs one backup sweep per day.
const DefaultCron = "@daily"

// DefaultConcurrency bounds how many containers are backed up at once
// across the whole sweep.
const DefaultConcurrency = 2

// Config tunes one watch loop.
type Config struct {
	Cron              string
	ExcludeContainers []string
	ExcludeVolumes    []string
	Concurrency       int64
}

// Watcher schedules and dispatches container backups.
type Watcher struct {
	client   dockerapi.Client
	schedule cron.Schedule
	excluded map[string]bool
	log      zerolog.Logger
	sem      *semaphore.Weighted

	// backup runs one container backup; swapped out in tests.
	backup func(ctx context.Context, name string) error
	now    func() time.Time

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
}

func New(client dockerapi.Client, mgr *snapshot.Manager, cfg Config, log zerolog.Logger) (*Watcher, error) {
	expr := cfg.Cron
	if expr == "" {
		expr = DefaultCron
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	excluded := make(map[string]bool, len(cfg.ExcludeContainers))
	for _, name := range cfg.ExcludeContainers {
		excluded[name] = true
	}
	filter := snapshot.MountFilter{Exclude: cfg.ExcludeVolumes}
	w := &Watcher{
		client:   client,
		schedule: schedule,
		excluded: excluded,
		log:      log.With().Str("component", "watch").Logger(),
		sem:      semaphore.NewWeighted(concurrency),
		now:      time.Now,
		inFlight: map[string]bool{},
	}
	w.backup = func(ctx context.Context, name string) error {
		_, err := mgr.BackupContainer(ctx, name, filter, w.now())
		return err
	}
	return w, nil
}

// Run blocks, firing a backup sweep at each cron tick, until ctx is
// cancelled. Cancellation stops new ticks and new dispatches but lets
// backups already underway run to completion before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info().Time("next", w.schedule.Next(w.now())).Msg("watch loop started")
	for {
		timer := time.NewTimer(time.Until(w.schedule.Next(w.now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			w.log.Info().Msg("watch loop stopping, draining in-flight backups")
			w.wg.Wait()
			return ctx.Err()
		case <-timer.C:
			w.tick(ctx)
		}
	}
}

// tick dispatches one backup sweep over the currently running containers.
func (w *Watcher) tick(ctx context.Context) {
	containers, err := w.client.ListContainers(ctx, false, nil)
	if err != nil {
		w.log.Error().Err(err).Msg("listing containers for sweep")
		return
	}
	for _, c := range containers {
		if !w.eligible(c) {
			continue
		}
		if !w.admit(c.Name) {
			w.log.Debug().Str("container", c.Name).Msg("backup still in flight, skipping")
			continue
		}
		if err := w.sem.Acquire(ctx, 1); err != nil {
			w.release(c.Name)
			return
		}
		w.wg.Add(1)
		name := c.Name
		go func() {
			defer w.wg.Done()
			defer w.sem.Release(1)
			defer w.release(name)
			// The job must survive loop cancellation once dispatched.
			if err := w.backup(context.WithoutCancel(ctx), name); err != nil {
				w.log.Error().Str("container", name).Err(err).Msg("scheduled backup failed")
				return
			}
			w.log.Info().Str("container", name).Msg("scheduled backup complete")
		}()
	}
}

func (w *Watcher) eligible(c dockerapi.ContainerSummary) bool {
	if c.Labels[helper.ManagedLabel] == "true" {
		return false
	}
	if c.Labels[EnabledLabel] == "false" {
		w.log.Debug().Str("container", c.Name).Msg("container opted out of scheduled backups")
		return false
	}
	if w.excluded[c.Name] {
		return false
	}
	return true
}

// admit marks the container in flight, refusing when a previous backup of it
// has not finished yet.
func (w *Watcher) admit(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight[name] {
		return false
	}
	w.inFlight[name] = true
	return true
}

func (w *Watcher) release(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, name)
}
