package presence

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/xp-economy/internal/domain/presence"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
)

func entry(id string) presence.Entry {
	return presence.Entry{AccountID: id, Token: "tok-" + id}
}

func TestService_ViewsShareOneState(t *testing.T) {
	svc := NewService(nil)

	var dashboard, community []Change
	unsubDash := svc.Subscribe(func(c Change) { dashboard = append(dashboard, c) })
	defer unsubDash()
	unsubCommunity := svc.Subscribe(func(c Change) { community = append(community, c) })
	defer unsubCommunity()

	svc.Sync(DefaultChannel, []presence.Entry{entry("A"), entry("B")})
	svc.Leave(DefaultChannel, "A")
	svc.Sync(DefaultChannel, []presence.Entry{entry("B"), entry("C")})

	assert.Equal(t, []string{"B", "C"}, svc.Snapshot(DefaultChannel))
	assert.Equal(t, 2, svc.Count(DefaultChannel))
	assert.True(t, svc.IsOnline(DefaultChannel, "C"))
	assert.False(t, svc.IsOnline(DefaultChannel, "A"))

	require.Len(t, dashboard, 3)
	assert.Equal(t, dashboard, community)
	assert.Equal(t, []string{"B"}, dashboard[1].Online)
}

func TestService_NoNotificationWithoutChange(t *testing.T) {
	svc := NewService(nil)
	calls := 0
	svc.Subscribe(func(Change) { calls++ })

	assert.True(t, svc.Join(DefaultChannel, entry("A")))
	assert.False(t, svc.Join(DefaultChannel, entry("A")))
	assert.False(t, svc.Leave(DefaultChannel, "missing"))
	assert.Equal(t, 1, calls)
}

func TestService_UnsubscribeStopsDelivery(t *testing.T) {
	svc := NewService(nil)
	calls := 0
	unsub := svc.Subscribe(func(Change) { calls++ })

	svc.Join("lab", entry("A"))
	unsub()
	unsub()
	svc.Join("lab", entry("B"))

	assert.Equal(t, 1, calls)
}

func TestService_ChannelsAreIndependent(t *testing.T) {
	svc := NewService(nil)
	svc.Join("lab", entry("A"))

	assert.Empty(t, svc.Snapshot(DefaultChannel))
	assert.Zero(t, svc.Count("unknown"))
	assert.Equal(t, []string{"A"}, svc.Snapshot("lab"))

	// Empty channel name falls back to the default channel.
	svc.Apply(presence.Signal{Type: presence.SignalJoin, Entry: &presence.Entry{AccountID: "Z"}})
	assert.Equal(t, []string{"Z"}, svc.Snapshot(DefaultChannel))
}

func TestService_ObserverMayReadService(t *testing.T) {
	svc := NewService(nil)
	var seen int
	svc.Subscribe(func(c Change) { seen = svc.Count(c.Channel) })

	svc.Join(DefaultChannel, entry("A"))
	assert.Equal(t, 1, seen)
}

func TestService_ConcurrentSignals(t *testing.T) {
	svc := NewService(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			svc.Join(DefaultChannel, entry(id))
			_ = svc.Snapshot(DefaultChannel)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 26, svc.Count(DefaultChannel))
}

func TestLocal_JoinLeave(t *testing.T) {
	svc := NewService(nil)
	local := NewLocal(svc)
	ctx := context.Background()

	e, err := local.Join(ctx, "", "alice", "")
	require.NoError(t, err)
	assert.NotEmpty(t, e.Token)
	assert.True(t, svc.IsOnline(DefaultChannel, "alice"))

	require.NoError(t, local.Leave(ctx, "", "alice"))
	assert.False(t, svc.IsOnline(DefaultChannel, "alice"))

	_, err = local.Join(ctx, "", "", "")
	assert.ErrorIs(t, err, shared.ErrInvalidID)
	assert.ErrorIs(t, local.Leave(ctx, "", ""), shared.ErrInvalidID)
}
