package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/xp-economy/internal/application/query"
	"github.com/alem-hub/xp-economy/pkg/circuitbreaker"
	"github.com/alem-hub/xp-economy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache keeps built leaderboards for a short TTL.
//
// Architecture:
//   - String "leaderboard:top:{limit}" holds the JSON-encoded entries
//   - Any XP change drops every "leaderboard:*" key
//
// The store stays the source of truth; a stale read lasts at most one TTL.
type LeaderboardCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

var _ query.LeaderboardCache = (*LeaderboardCache)(nil)

// NewLeaderboardCache creates a leaderboard cache. ttl <= 0 uses TTLLeaderboardCache.
func NewLeaderboardCache(cache *Cache, ttl time.Duration, log *logger.Logger) *LeaderboardCache {
	if ttl <= 0 {
		ttl = TTLLeaderboardCache
	}
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With(logger.Component("leaderboard_cache"))
	return &LeaderboardCache{
		cache: cache,
		ttl:   ttl,
		breaker: circuitbreaker.RedisBreaker("leaderboard_cache", func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
		log: log,
	}
}

// GetLeaderboard returns the cached leaderboard of the given size.
// A miss is (nil, false, nil).
func (l *LeaderboardCache) GetLeaderboard(ctx context.Context, limit int) ([]query.LeaderboardEntryDTO, bool, error) {
	var entries []query.LeaderboardEntryDTO
	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		err := l.cache.Get(ctx, LeaderboardKey(limit), &entries)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if entries == nil {
		return nil, false, nil
	}
	return entries, true, nil
}

// SetLeaderboard stores a built leaderboard.
func (l *LeaderboardCache) SetLeaderboard(ctx context.Context, limit int, entries []query.LeaderboardEntryDTO) error {
	if entries == nil {
		entries = []query.LeaderboardEntryDTO{}
	}
	return l.breaker.Execute(ctx, func(ctx context.Context) error {
		return l.cache.Set(ctx, LeaderboardKey(limit), entries, l.ttl)
	})
}

// InvalidateLeaderboard drops every cached leaderboard size.
func (l *LeaderboardCache) InvalidateLeaderboard(ctx context.Context) error {
	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		return l.cache.DeleteByPattern(ctx, PrefixLeaderboard+"*")
	})
	if err != nil {
		l.log.Warn("failed to invalidate leaderboard cache", logger.Err(err))
	}
	return err
}
