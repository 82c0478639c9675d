package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/xp-economy/internal/domain/account"
	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/internal/domain/social"
)

// testStore connects to POSTGRES_TEST_URL and applies the migrations.
// Every test works on ids unique to the run, so a shared database is fine.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}

	ctx := context.Background()
	conn, err := NewConnection(ctx, Config{URL: url, MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	require.NoError(t, NewMigrator(conn).Migrate(ctx))
	return NewStore(conn)
}

func uniqueID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func createAccount(t *testing.T, s *Store, id string, xp int64) {
	t.Helper()
	ctx := context.Background()
	acc, err := account.New(id, id, account.RoleStudent, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, acc))
	if xp > 0 {
		_, err = s.Credit(ctx, id, xp, economy.Cause{Reason: economy.ReasonCompletion, ReferenceID: "seed"})
		require.NoError(t, err)
	}
}

func TestStore_DebitNeverOverdraws(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	id := uniqueID("alice")
	createAccount(t, s, id, 500)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Debit(ctx, id, 100, economy.Cause{Reason: economy.ReasonRedemption, ReferenceID: uuid.NewString()})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, shared.ErrInsufficientXP)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	acc, err := s.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, acc.XP)

	balance, err := s.Debit(ctx, id, 1, economy.Cause{Reason: economy.ReasonRedemption, ReferenceID: "short"})
	assert.ErrorIs(t, err, shared.ErrInsufficientXP)
	assert.Zero(t, balance)

	_, err = s.Debit(ctx, uniqueID("ghost"), 1, economy.Cause{Reason: economy.ReasonRedemption, ReferenceID: "x"})
	assert.ErrorIs(t, err, shared.ErrAccountNotFound)

	entries, err := s.ListLedger(ctx, id, 100)
	require.NoError(t, err)
	assert.Len(t, entries, 6)
}

func TestStore_RecordLoginCompareAndSwap(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	id := uniqueID("bob")
	createAccount(t, s, id, 0)

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordLogin(ctx, id, nil, 1, day))
	assert.ErrorIs(t, s.RecordLogin(ctx, id, nil, 1, day), shared.ErrStreakAlreadyCounted)
	require.NoError(t, s.RecordLogin(ctx, id, &day, 2, day.AddDate(0, 0, 1)))

	acc, err := s.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, acc.CurrentStreak)

	assert.ErrorIs(t, s.RecordLogin(ctx, uniqueID("ghost"), nil, 1, day), shared.ErrAccountNotFound)
}

func TestStore_ConnectionSwapAndConditionalDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	// Mixed case ids order differently under linguistic collations.
	upper, lower := uniqueID("Bob"), uniqueID("alice")
	createAccount(t, s, upper, 0)
	createAccount(t, s, lower, 0)

	req, err := social.NewRequest(lower, upper, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.InsertConnection(ctx, req))
	assert.ErrorIs(t, s.InsertConnection(ctx, req), shared.ErrConnectionExists)

	got, err := s.GetConnection(ctx, req.Pair)
	require.NoError(t, err)
	assert.Equal(t, upper, got.UserA)
	assert.Equal(t, social.ConnectionPending, got.Status)

	accepted, err := req.Accept(upper, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.SwapConnection(ctx, req, accepted))
	assert.ErrorIs(t, s.SwapConnection(ctx, req, accepted), shared.ErrConnectionChanged)

	assert.ErrorIs(t, s.DeleteConnectionIf(ctx, req), shared.ErrConnectionChanged)
	require.NoError(t, s.DeleteConnectionIf(ctx, accepted))
	_, err = s.GetConnection(ctx, req.Pair)
	assert.True(t, shared.IsNotFound(err))

	ghost, err := social.NewRequest(lower, uniqueID("ghost"), time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, s.InsertConnection(ctx, ghost), shared.ErrAccountNotFound)
}

func TestStore_DeleteGroupCascades(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	g1, g2 := uniqueID("go"), uniqueID("rust")
	require.NoError(t, s.PutGroup(ctx, &social.Group{ID: g1, Name: "Go"}))
	require.NoError(t, s.PutGroup(ctx, &social.Group{ID: g2, Name: "Rust"}))

	for _, u := range []string{"a", "b", "c"} {
		m, err := social.NewJoinRequest(g1, u, time.Now())
		require.NoError(t, err)
		inserted, err := s.InsertMembershipIfAbsent(ctx, m)
		require.NoError(t, err)
		assert.True(t, inserted)
	}
	other, err := social.NewMember(g2, "a", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.UpsertMembership(ctx, other))

	removed, err := s.DeleteGroup(ctx, g1)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	members, err := s.ListMembers(ctx, g1)
	require.NoError(t, err)
	assert.Empty(t, members)
	members, err = s.ListMembers(ctx, g2)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	_, err = s.DeleteGroup(ctx, g1)
	assert.ErrorIs(t, err, shared.ErrGroupNotFound)
}
