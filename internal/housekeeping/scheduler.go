// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package housekeeping runs a periodic, read-only keyspace stats sweep on
// a cron schedule, mirroring the teacher's scheduler.go but repurposed
// from running backup jobs to logging compaction statistics: this service
// has no files to rotate, only an expiration index to report on.
package housekeeping

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nishisan-dev/burrow/internal/shutdown"
	"github.com/nishisan-dev/burrow/internal/store"
)

// Scheduler drives the periodic stats sweep off a single cron entry.
type Scheduler struct {
	cron   *cron.Cron
	store  *store.Store
	logger *slog.Logger
}

// New builds a Scheduler that logs store.Stats() on the given cron
// schedule (e.g. "@every 1m"). Scheduling errors (a malformed expression)
// are returned immediately rather than discovered at Start.
func New(schedule string, st *store.Store, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		store:  st,
		logger: logger.With("component", "housekeeping"),
	}

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if _, err := c.AddFunc(schedule, s.sweep); err != nil {
		return nil, err
	}
	s.cron = c
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.logger.Info("housekeeping scheduler started")
	s.cron.Start()
}

// Stop waits for any in-flight sweep to finish, or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.logger.Info("housekeeping scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("housekeeping scheduler stop timed out")
	}
}

// Run starts the scheduler and blocks until sig fires, then stops it.
// Convenient for wiring directly into a server's lifetime alongside the
// expiration task, which shares the same shutdown.Signal.
func (s *Scheduler) Run(sig shutdown.Signal) {
	s.Start()
	<-sig.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(stopCtx)
}

func (s *Scheduler) sweep() {
	stats := s.store.Stats()
	s.logger.Info("keyspace stats",
		"keys", stats.KeyCount,
		"keys_with_expiry", stats.KeysWithExpiry,
		"channels", stats.ChannelCount,
		"next_expiry_in", stats.NextExpiryIn,
	)
}
