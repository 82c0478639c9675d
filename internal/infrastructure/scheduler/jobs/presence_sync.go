// Package jobs contains the scheduled maintenance jobs of the economy service.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/presence"
	"github.com/alem-hub/xp-economy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE SYNC JOB
// ══════════════════════════════════════════════════════════════════════════════

// PresenceSyncer prunes stale liveness entries of a channel and broadcasts the snapshot.
type PresenceSyncer interface {
	Sync(ctx context.Context, channel string) ([]presence.Entry, error)
}

// PresenceSyncJob periodically broadcasts a full presence snapshot per channel.
// Subscribers replace their set with it, which heals lost join/leave signals.
type PresenceSyncJob struct {
	syncer   PresenceSyncer
	channels []string
	log      *logger.Logger

	lastStats atomic.Pointer[PresenceSyncStats]
}

// PresenceSyncStats describes the last run.
type PresenceSyncStats struct {
	Channels int
	Online   int
	Failed   int
	Duration time.Duration
}

// NewPresenceSyncJob creates the job. An empty channel list syncs the default channel.
func NewPresenceSyncJob(syncer PresenceSyncer, channels []string, log *logger.Logger) *PresenceSyncJob {
	if len(channels) == 0 {
		channels = []string{""}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &PresenceSyncJob{
		syncer:   syncer,
		channels: channels,
		log:      log.With(logger.Component("presence_sync_job")),
	}
}

// Name returns the job name.
func (j *PresenceSyncJob) Name() string { return "presence_sync" }

// Description returns a human-readable description.
func (j *PresenceSyncJob) Description() string {
	return "Prunes stale presence entries and broadcasts a snapshot for every channel"
}

// Run syncs every channel. One failing channel does not stop the others.
func (j *PresenceSyncJob) Run(ctx context.Context) error {
	start := time.Now()
	stats := &PresenceSyncStats{Channels: len(j.channels)}

	var errs []error
	for _, ch := range j.channels {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		entries, err := j.syncer.Sync(ctx, ch)
		if err != nil {
			stats.Failed++
			errs = append(errs, fmt.Errorf("channel %q: %w", ch, err))
			j.log.Warn("presence sync failed", logger.Channel(ch), logger.Err(err))
			continue
		}
		stats.Online += len(entries)
	}

	stats.Duration = time.Since(start)
	j.lastStats.Store(stats)

	j.log.Debug("presence synced",
		logger.Int("channels", stats.Channels),
		logger.Int("online", stats.Online),
		logger.Int("failed", stats.Failed),
	)
	return errors.Join(errs...)
}

// LastStats returns stats of the last run, or nil before the first one.
func (j *PresenceSyncJob) LastStats() *PresenceSyncStats {
	return j.lastStats.Load()
}
