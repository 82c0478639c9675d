package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/xp-economy/internal/domain/presence"
)

type fakeSyncer struct {
	online map[string]int
	fail   map[string]error
	calls  []string
}

func (f *fakeSyncer) Sync(_ context.Context, channel string) ([]presence.Entry, error) {
	f.calls = append(f.calls, channel)
	if err := f.fail[channel]; err != nil {
		return nil, err
	}
	return make([]presence.Entry, f.online[channel]), nil
}

func TestPresenceSyncJob_SyncsEveryChannel(t *testing.T) {
	boom := errors.New("redis down")
	syncer := &fakeSyncer{
		online: map[string]int{"online": 3, "lobby": 1},
		fail:   map[string]error{"broken": boom},
	}
	job := NewPresenceSyncJob(syncer, []string{"online", "broken", "lobby"}, nil)

	assert.Nil(t, job.LastStats())
	err := job.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"online", "broken", "lobby"}, syncer.calls)

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.Channels)
	assert.Equal(t, 4, stats.Online)
	assert.Equal(t, 1, stats.Failed)
}

func TestPresenceSyncJob_DefaultChannel(t *testing.T) {
	syncer := &fakeSyncer{}
	job := NewPresenceSyncJob(syncer, nil, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{""}, syncer.calls)
	assert.Equal(t, "presence_sync", job.Name())
}

func TestPresenceSyncJob_StopsOnCancel(t *testing.T) {
	syncer := &fakeSyncer{}
	job := NewPresenceSyncJob(syncer, []string{"a", "b"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Empty(t, syncer.calls)
}

type warmerFunc func(ctx context.Context) error

func (f warmerFunc) Warm(ctx context.Context) error { return f(ctx) }

func TestWarmLeaderboardJob(t *testing.T) {
	calls := 0
	job := NewWarmLeaderboardJob(warmerFunc(func(context.Context) error {
		calls++
		return nil
	}), nil)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, calls)

	boom := errors.New("store down")
	failing := NewWarmLeaderboardJob(warmerFunc(func(context.Context) error { return boom }), nil)
	assert.ErrorIs(t, failing.Run(context.Background()), boom)
}
