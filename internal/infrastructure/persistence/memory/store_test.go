package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/xp-economy/internal/domain/account"
	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/internal/domain/social"
)

var ctx = context.Background()

func seedAccount(t *testing.T, s *Store, id string, xp int64) {
	t.Helper()
	acc, err := account.New(id, id, account.RoleStudent, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, acc))
	if xp > 0 {
		_, err = s.Credit(ctx, id, xp, economy.Cause{Reason: economy.ReasonCompletion, ReferenceID: "seed"})
		require.NoError(t, err)
	}
}

func TestStore_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	s := New()
	seedAccount(t, s, "acc", 1000)

	var ok, insufficient atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Debit(ctx, "acc", 100, economy.RedemptionCause("x"))
			switch {
			case err == nil:
				ok.Add(1)
			case shared.IsInsufficientFunds(err):
				insufficient.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, ok.Load())
	assert.EqualValues(t, 15, insufficient.Load())

	acc, err := s.GetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.Zero(t, acc.XP)
}

func TestStore_DebitRejectsNonPositive(t *testing.T) {
	s := New()
	seedAccount(t, s, "acc", 10)

	_, err := s.Debit(ctx, "acc", 0, economy.RedemptionCause("x"))
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = s.Credit(ctx, "missing", 5, economy.RedemptionCause("x"))
	assert.True(t, shared.IsNotFound(err))
}

func TestStore_LedgerTracesEveryMutation(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))
	seedAccount(t, s, "acc", 300)

	_, err := s.Debit(ctx, "acc", 120, economy.RedemptionCause("r-1"))
	require.NoError(t, err)

	entries, err := s.ListLedger(ctx, "acc", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(-120), entries[0].Delta)
	assert.Equal(t, int64(180), entries[0].Balance)
	assert.Equal(t, "r-1", entries[0].ReferenceID)
	assert.Equal(t, economy.ReasonCompletion, entries[1].Reason)
	assert.Equal(t, now, entries[0].CreatedAt)

	limited, _ := s.ListLedger(ctx, "acc", 1)
	assert.Len(t, limited, 1)
}

func TestStore_WithinTxRollsBackOnError(t *testing.T) {
	s := New()
	seedAccount(t, s, "acc", 500)
	require.NoError(t, s.PutReward(ctx, &economy.Reward{ID: "mug", Name: "Mug", XPCost: 200}))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx economy.Store) error {
		if _, err := tx.Debit(ctx, "acc", 200, economy.RedemptionCause("r-1")); err != nil {
			return err
		}
		require.NoError(t, tx.InsertRedemption(ctx, economy.NewRedemption("r-1", "acc", "mug", time.Now())))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	acc, _ := s.GetAccount(ctx, "acc")
	assert.Equal(t, int64(500), acc.XP)
	_, err = s.GetRedemption(ctx, "r-1")
	assert.True(t, shared.IsNotFound(err))
}

func TestStore_WithinTxCommitsAndNests(t *testing.T) {
	s := New()
	seedAccount(t, s, "acc", 500)

	err := s.WithinTx(ctx, func(tx economy.Store) error {
		return tx.WithinTx(ctx, func(inner economy.Store) error {
			_, err := inner.Debit(ctx, "acc", 100, economy.RedemptionCause("r"))
			return err
		})
	})
	require.NoError(t, err)

	acc, _ := s.GetAccount(ctx, "acc")
	assert.Equal(t, int64(400), acc.XP)
}

func TestStore_InsertCompletionIsUnique(t *testing.T) {
	s := New()
	seedAccount(t, s, "acc", 0)
	rec, _ := economy.NewCompletionRecord("acc", "go-101", economy.KindCourse, time.Now())

	require.NoError(t, s.InsertCompletion(ctx, rec))
	err := s.InsertCompletion(ctx, rec)
	assert.True(t, shared.IsAlreadyCompleted(err))
	assert.True(t, shared.IsConflict(err))

	event, _ := economy.NewCompletionRecord("acc", "go-101", economy.KindEvent, time.Now())
	require.NoError(t, s.InsertCompletion(ctx, event))

	list, _ := s.ListCompletions(ctx, "acc")
	assert.Len(t, list, 2)
}

func TestStore_AwardBadgeIsIdempotent(t *testing.T) {
	s := New()
	seedAccount(t, s, "acc", 0)
	require.NoError(t, s.PutBadge(ctx, &economy.Badge{ID: "gopher", Name: "Gopher"}))

	created, err := s.AwardBadge(ctx, economy.AccountBadge{AccountID: "acc", BadgeID: "gopher"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.AwardBadge(ctx, economy.AccountBadge{AccountID: "acc", BadgeID: "gopher"})
	require.NoError(t, err)
	assert.False(t, created)

	badges, _ := s.ListAccountBadges(ctx, "acc")
	require.Len(t, badges, 1)
	assert.Equal(t, "Gopher", badges[0].Name)
}

func TestStore_RecordLoginCompareAndSwap(t *testing.T) {
	s := New()
	seedAccount(t, s, "acc", 0)
	day := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordLogin(ctx, "acc", nil, 1, day))
	err := s.RecordLogin(ctx, "acc", nil, 1, day)
	assert.ErrorIs(t, err, shared.ErrStreakAlreadyCounted)

	next := day.AddDate(0, 0, 1)
	require.NoError(t, s.RecordLogin(ctx, "acc", &day, 2, next))

	acc, _ := s.GetAccount(ctx, "acc")
	assert.Equal(t, 2, acc.CurrentStreak)
	assert.Equal(t, next, *acc.LastLoginDate)
}

func TestStore_SwapConnectionDetectsChanges(t *testing.T) {
	s := New()
	seedAccount(t, s, "alice", 0)
	seedAccount(t, s, "bob", 0)
	req, _ := social.NewRequest("bob", "alice", time.Now())
	require.NoError(t, s.InsertConnection(ctx, req))
	assert.ErrorIs(t, s.InsertConnection(ctx, req), shared.ErrConnectionExists)

	accepted, _ := req.Accept("alice", time.Now())
	require.NoError(t, s.SwapConnection(ctx, req, accepted))
	assert.ErrorIs(t, s.SwapConnection(ctx, req, accepted), shared.ErrConnectionChanged)

	deleted, err := s.DeleteConnection(ctx, req.Pair)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.ErrorIs(t, s.SwapConnection(ctx, accepted, req), shared.ErrConnectionChanged)
}

func TestStore_InsertConnectionRequiresBothAccounts(t *testing.T) {
	s := New()
	seedAccount(t, s, "alice", 0)

	req, _ := social.NewRequest("alice", "ghost", time.Now())
	assert.ErrorIs(t, s.InsertConnection(ctx, req), shared.ErrAccountNotFound)
	req, _ = social.NewRequest("ghost", "alice", time.Now())
	assert.ErrorIs(t, s.InsertConnection(ctx, req), shared.ErrAccountNotFound)

	_, err := s.GetConnection(ctx, req.Pair)
	assert.True(t, shared.IsNotFound(err))
}

func TestStore_DeleteConnectionIfMatchesSnapshot(t *testing.T) {
	s := New()
	seedAccount(t, s, "alice", 0)
	seedAccount(t, s, "bob", 0)
	req, _ := social.NewRequest("bob", "alice", time.Now())
	require.NoError(t, s.InsertConnection(ctx, req))
	accepted, _ := req.Accept("alice", time.Now())
	require.NoError(t, s.SwapConnection(ctx, req, accepted))

	assert.ErrorIs(t, s.DeleteConnectionIf(ctx, req), shared.ErrConnectionChanged)
	got, err := s.GetConnection(ctx, req.Pair)
	require.NoError(t, err)
	assert.Equal(t, social.ConnectionAccepted, got.Status)

	require.NoError(t, s.DeleteConnectionIf(ctx, got))
	assert.ErrorIs(t, s.DeleteConnectionIf(ctx, got), shared.ErrConnectionChanged)
}

func TestStore_DeleteGroupCascades(t *testing.T) {
	s := New()
	require.NoError(t, s.PutGroup(ctx, &social.Group{ID: "g1", Name: "Go"}))
	require.NoError(t, s.PutGroup(ctx, &social.Group{ID: "g2", Name: "Rust"}))
	for _, u := range []string{"a", "b", "c"} {
		m, _ := social.NewJoinRequest("g1", u, time.Now())
		_, err := s.InsertMembershipIfAbsent(ctx, m)
		require.NoError(t, err)
	}
	other, _ := social.NewMember("g2", "a", time.Now())
	require.NoError(t, s.UpsertMembership(ctx, other))

	removed, err := s.DeleteGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	members, _ := s.ListMembers(ctx, "g1")
	assert.Empty(t, members)
	members, _ = s.ListMembers(ctx, "g2")
	assert.Len(t, members, 1)

	_, err = s.DeleteGroup(ctx, "g1")
	assert.ErrorIs(t, err, shared.ErrGroupNotFound)
}

func TestStore_ListRewardsByCost(t *testing.T) {
	s := New()
	require.NoError(t, s.PutReward(ctx, &economy.Reward{ID: "hoodie", Name: "Hoodie", XPCost: 3000}))
	require.NoError(t, s.PutReward(ctx, &economy.Reward{ID: "sticker", Name: "Sticker", XPCost: 100}))
	require.NoError(t, s.PutReward(ctx, &economy.Reward{ID: "mug", Name: "Mug", XPCost: 800}))

	rewards, err := s.ListRewards(ctx)
	require.NoError(t, err)
	ids := []string{rewards[0].ID, rewards[1].ID, rewards[2].ID}
	assert.Equal(t, []string{"sticker", "mug", "hoodie"}, ids)
}

func TestStore_TopAccountsAndCounts(t *testing.T) {
	s := New()
	seedAccount(t, s, "a", 100)
	seedAccount(t, s, "b", 900)
	seedAccount(t, s, "c", 100)
	admin, _ := account.New("root", "Root", account.RoleAdmin, time.Now())
	require.NoError(t, s.CreateAccount(ctx, admin))
	require.NoError(t, s.PutActivity(ctx, &economy.Activity{ID: "go", Kind: economy.KindCourse, XPReward: 10}))
	require.NoError(t, s.PutActivity(ctx, &economy.Activity{ID: "meetup", Kind: economy.KindEvent, XPReward: 10}))

	top, err := s.TopAccounts(ctx, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{top[0].ID, top[1].ID, top[2].ID})

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, economy.Counts{Accounts: 4, Admins: 1, Courses: 1, Events: 1}, counts)
}

func TestStore_ReturnedValuesAreCopies(t *testing.T) {
	s := New()
	seedAccount(t, s, "acc", 50)

	acc, _ := s.GetAccount(ctx, "acc")
	acc.XP = 1_000_000

	fresh, _ := s.GetAccount(ctx, "acc")
	assert.Equal(t, int64(50), fresh.XP)
}
