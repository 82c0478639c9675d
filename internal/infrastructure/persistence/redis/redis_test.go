package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/xp-economy/internal/application/presence"
	"github.com/alem-hub/xp-economy/internal/application/query"
	dpresence "github.com/alem-hub/xp-economy/internal/domain/presence"
	"github.com/alem-hub/xp-economy/pkg/retry"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheFromClient(client), mr
}

func TestCache_SetGet(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	require.NoError(t, cache.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))

	var got map[string]int
	require.NoError(t, cache.Get(ctx, "k", &got))
	assert.Equal(t, 1, got["a"])

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, cache.Get(ctx, "k", &got), ErrCacheMiss)

	assert.ErrorIs(t, cache.Set(ctx, "", 1, time.Minute), ErrCacheKeyEmpty)
	assert.ErrorIs(t, cache.Set(ctx, "k", nil, time.Minute), ErrCacheNilValue)
	assert.ErrorIs(t, cache.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
}

func TestLeaderboardCache(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	lb := NewLeaderboardCache(cache, 30*time.Second, nil)

	_, hit, err := lb.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	assert.False(t, hit)

	entries := []query.LeaderboardEntryDTO{
		{Rank: 1, AccountID: "bob", DisplayName: "Bob", XP: 500, Level: 1},
		{Rank: 2, AccountID: "alice", DisplayName: "Alice", XP: 100, Level: 1},
	}
	require.NoError(t, lb.SetLeaderboard(ctx, 10, entries))
	require.NoError(t, lb.SetLeaderboard(ctx, 3, entries[:1]))

	got, hit, err := lb.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, entries, got)

	require.NoError(t, lb.InvalidateLeaderboard(ctx))
	for _, limit := range []int{3, 10} {
		_, hit, err = lb.GetLeaderboard(ctx, limit)
		require.NoError(t, err)
		assert.False(t, hit)
	}

	t.Run("empty leaderboard is a hit", func(t *testing.T) {
		require.NoError(t, lb.SetLeaderboard(ctx, 5, nil))
		got, hit, err := lb.GetLeaderboard(ctx, 5)
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Empty(t, got)
	})

	t.Run("expires after ttl", func(t *testing.T) {
		require.NoError(t, lb.SetLeaderboard(ctx, 7, entries))
		mr.FastForward(31 * time.Second)
		_, hit, err := lb.GetLeaderboard(ctx, 7)
		require.NoError(t, err)
		assert.False(t, hit)
	})
}

func TestLeaderboardCache_RedisDown(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	lb := NewLeaderboardCache(cache, 0, nil)
	mr.Close()

	_, hit, err := lb.GetLeaderboard(ctx, 10)
	assert.Error(t, err)
	assert.False(t, hit)
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func noRetry() *retry.Retrier {
	return retry.New(retry.WithMaxAttempts(1))
}

func startForwarder(t *testing.T, ch *PresenceChannel) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- ch.Listen(ctx, ready) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder did not subscribe")
	}
}

func TestPresenceChannel_JoinLeaveForwarded(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	service := presence.NewService(nil)
	clock := &fixedClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	ch := NewPresenceChannel(cache, service, nil, WithPresenceClock(clock.Now), WithPresenceRetrier(noRetry()))
	startForwarder(t, ch)

	entry, err := ch.Join(ctx, "", "alice", "")
	require.NoError(t, err)
	assert.NotEmpty(t, entry.Token)
	assert.Equal(t, clock.Now(), entry.SeenAt)

	require.Eventually(t, func() bool {
		return service.IsOnline(presence.DefaultChannel, "alice")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ch.Leave(ctx, presence.DefaultChannel, "alice"))
	require.Eventually(t, func() bool {
		return !service.IsOnline(presence.DefaultChannel, "alice")
	}, 2*time.Second, 10*time.Millisecond)

	_, err = ch.Join(ctx, "lobby", "", "")
	assert.ErrorIs(t, err, ErrAccountIDEmpty)
}

func TestPresenceChannel_SyncPrunesStale(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	service := presence.NewService(nil)
	clock := &fixedClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	ch := NewPresenceChannel(cache, service, nil,
		WithPresenceClock(clock.Now),
		WithPresenceTTL(time.Minute),
		WithPresenceRetrier(noRetry()),
	)

	_, err := ch.Join(ctx, "online", "alice", "tok-a")
	require.NoError(t, err)
	clock.Advance(90 * time.Second)
	_, err = ch.Join(ctx, "online", "bob", "tok-b")
	require.NoError(t, err)

	startForwarder(t, ch)

	entries, err := ch.Sync(ctx, "online")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bob", entries[0].AccountID)
	assert.Equal(t, "tok-b", entries[0].Token)
	assert.Equal(t, clock.Now(), entries[0].SeenAt)

	require.Eventually(t, func() bool {
		return service.Count("online") == 1 && service.IsOnline("online", "bob")
	}, 2*time.Second, 10*time.Millisecond)

	members, err := cache.Client().ZRange(ctx, PresenceKey("online"), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, members)

	tokens, err := cache.Client().HGetAll(ctx, PresenceTokensKey("online")).Result()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"bob": "tok-b"}, tokens)
}

func TestPresenceChannel_SyncHealsMissedLeave(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	service := presence.NewService(nil)
	ch := NewPresenceChannel(cache, service, nil, WithPresenceRetrier(noRetry()))

	// A join that this process heard but whose leave it missed.
	service.Join("online", dpresence.Entry{AccountID: "ghost", Token: "t", SeenAt: time.Now()})
	require.True(t, service.IsOnline("online", "ghost"))

	startForwarder(t, ch)
	_, err := ch.Sync(ctx, "online")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !service.IsOnline("online", "ghost")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPresenceChannel_PublishFailsWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	ch := NewPresenceChannel(cache, presence.NewService(nil), nil, WithPresenceRetrier(noRetry()))
	mr.Close()

	_, err := ch.Join(ctx, "online", "alice", "")
	assert.Error(t, err)
}
