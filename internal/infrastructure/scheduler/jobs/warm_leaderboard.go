package jobs

import (
	"context"
	"fmt"

	"github.com/alem-hub/xp-economy/pkg/logger"
)

// LeaderboardWarmer rebuilds the cached default leaderboard from the store.
type LeaderboardWarmer interface {
	Warm(ctx context.Context) error
}

// WarmLeaderboardJob keeps the leaderboard cache hot between XP changes.
type WarmLeaderboardJob struct {
	warmer LeaderboardWarmer
	log    *logger.Logger
}

// NewWarmLeaderboardJob creates the job.
func NewWarmLeaderboardJob(warmer LeaderboardWarmer, log *logger.Logger) *WarmLeaderboardJob {
	if log == nil {
		log = logger.NewNop()
	}
	return &WarmLeaderboardJob{warmer: warmer, log: log.With(logger.Component("warm_leaderboard_job"))}
}

// Name returns the job name.
func (j *WarmLeaderboardJob) Name() string { return "warm_leaderboard" }

// Description returns a human-readable description.
func (j *WarmLeaderboardJob) Description() string {
	return "Rebuilds the cached leaderboard from the store"
}

// Run rebuilds the cache.
func (j *WarmLeaderboardJob) Run(ctx context.Context) error {
	if err := j.warmer.Warm(ctx); err != nil {
		return fmt.Errorf("failed to warm leaderboard: %w", err)
	}
	j.log.Debug("leaderboard warmed")
	return nil
}
