package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/xp-economy/internal/domain/account"
	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/social"
	"github.com/alem-hub/xp-economy/internal/infrastructure/persistence/memory"
)

var ctx = context.Background()

type stubPresence map[string]bool

func (p stubPresence) IsOnline(_, id string) bool { return p[id] }
func (p stubPresence) Count(string) int           { return len(p) }

func seeded(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	for id, xp := range map[string]int64{"alice": 2500, "bob": 900, "carol": 900, "root": 0} {
		role := account.RoleStudent
		if id == "root" {
			role = account.RoleAdmin
		}
		acc, err := account.New(id, id, role, time.Now())
		require.NoError(t, err)
		require.NoError(t, s.CreateAccount(ctx, acc))
		if xp > 0 {
			_, err = s.Credit(ctx, id, xp, economy.Cause{Reason: economy.ReasonCompletion, ReferenceID: "seed"})
			require.NoError(t, err)
		}
	}
	require.NoError(t, s.PutBadge(ctx, &economy.Badge{ID: "gopher", Name: "Gopher"}))
	require.NoError(t, s.PutActivity(ctx, &economy.Activity{ID: "go-101", Kind: economy.KindCourse, XPReward: 500, BadgeID: "gopher"}))
	require.NoError(t, s.PutActivity(ctx, &economy.Activity{ID: "meetup", Kind: economy.KindEvent, XPReward: 100}))
	require.NoError(t, s.PutReward(ctx, &economy.Reward{ID: "hoodie", Name: "Hoodie", XPCost: 3000}))
	require.NoError(t, s.PutReward(ctx, &economy.Reward{ID: "mug", Name: "Mug", XPCost: 800}))
	require.NoError(t, s.PutGroup(ctx, &social.Group{ID: "gophers", Name: "Gophers"}))
	return s
}

func TestGetProfile(t *testing.T) {
	s := seeded(t)
	rec, _ := economy.NewCompletionRecord("alice", "go-101", economy.KindCourse, time.Now())
	require.NoError(t, s.InsertCompletion(ctx, rec))
	_, err := s.AwardBadge(ctx, economy.AccountBadge{AccountID: "alice", BadgeID: "gopher"})
	require.NoError(t, err)

	h := NewGetProfileHandler(s, stubPresence{"alice": true})
	res, err := h.Handle(ctx, GetProfileQuery{AccountID: "alice", LedgerLimit: 5})
	require.NoError(t, err)

	assert.Equal(t, int64(2500), res.Account.XP)
	assert.Equal(t, 3, res.Account.Level)
	assert.True(t, res.Account.IsOnline)
	assert.Len(t, res.Badges, 1)
	assert.Len(t, res.Completions, 1)
	assert.Len(t, res.Ledger, 1)

	_, err = h.Handle(ctx, GetProfileQuery{AccountID: "ghost"})
	assert.Error(t, err)
}

// mapCache is an in-process LeaderboardCache.
type mapCache struct {
	data    map[int][]LeaderboardEntryDTO
	failGet bool
}

func (c *mapCache) GetLeaderboard(_ context.Context, limit int) ([]LeaderboardEntryDTO, bool, error) {
	if c.failGet {
		return nil, false, errors.New("redis down")
	}
	e, ok := c.data[limit]
	return e, ok, nil
}

func (c *mapCache) SetLeaderboard(_ context.Context, limit int, entries []LeaderboardEntryDTO) error {
	c.data[limit] = entries
	return nil
}

func (c *mapCache) InvalidateLeaderboard(context.Context) error {
	c.data = map[int][]LeaderboardEntryDTO{}
	return nil
}

func TestGetLeaderboard_RanksAndCaches(t *testing.T) {
	s := seeded(t)
	cache := &mapCache{data: map[int][]LeaderboardEntryDTO{}}
	h := NewGetLeaderboardHandler(s, cache, nil)

	res, err := h.Handle(ctx, GetLeaderboardQuery{Limit: 3})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "alice", res.Entries[0].AccountID)
	assert.Equal(t, "bob", res.Entries[1].AccountID, "ties break by account id")
	assert.Equal(t, "carol", res.Entries[2].AccountID)
	assert.Equal(t, 3, res.Entries[2].Rank)

	res, err = h.Handle(ctx, GetLeaderboardQuery{Limit: 3})
	require.NoError(t, err)
	assert.True(t, res.FromCache)

	cache.failGet = true
	res, err = h.Handle(ctx, GetLeaderboardQuery{Limit: 3})
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	_, err = h.Handle(ctx, GetLeaderboardQuery{Limit: -1})
	assert.Error(t, err)
}

func TestGetLeaderboard_LimitNormalization(t *testing.T) {
	q := GetLeaderboardQuery{}
	require.NoError(t, q.Validate())
	assert.Equal(t, DefaultLeaderboardLimit, q.Limit)

	q = GetLeaderboardQuery{Limit: 1000}
	require.NoError(t, q.Validate())
	assert.Equal(t, MaxLeaderboardLimit, q.Limit)
}

func TestSocialQueries_PerViewerStatus(t *testing.T) {
	s := seeded(t)
	req, _ := social.NewRequest("bob", "alice", time.Now())
	require.NoError(t, s.InsertConnection(ctx, req))
	conn, _ := social.NewRequest("alice", "carol", time.Now())
	require.NoError(t, s.InsertConnection(ctx, conn))
	accepted, _ := conn.Accept("carol", time.Now())
	require.NoError(t, s.SwapConnection(ctx, conn, accepted))

	q := NewSocialQueries(s, nil, "online")

	peers, err := q.ListAccountsWithStatus(ctx, "alice")
	require.NoError(t, err)
	got := map[string]social.ViewerStatus{}
	for _, p := range peers {
		got[p.ID] = p.Status
	}
	assert.Equal(t, map[string]social.ViewerStatus{
		"bob":   social.StatusPendingReceived,
		"carol": social.StatusConnected,
		"root":  social.StatusNotConnected,
	}, got)

	st, err := q.ConnectionStatus(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, social.StatusPendingSent, st)

	st, err = q.ConnectionStatus(ctx, "bob", "carol")
	require.NoError(t, err)
	assert.Equal(t, social.StatusNotConnected, st)

	pending, err := q.ListPendingConnections(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "bob", pending[0].ActionUserID)
}

func TestSocialQueries_Groups(t *testing.T) {
	s := seeded(t)
	m1, _ := social.NewJoinRequest("gophers", "alice", time.Now())
	_, err := s.InsertMembershipIfAbsent(ctx, m1)
	require.NoError(t, err)
	m2, _ := social.NewMember("gophers", "bob", time.Now())
	require.NoError(t, s.UpsertMembership(ctx, m2))

	q := NewSocialQueries(s, stubPresence{"bob": true}, "online")

	groups, err := q.ListGroups(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 1, groups[0].Members)
	assert.Equal(t, string(social.MembershipPending), groups[0].ViewerStatus)

	members, err := q.ListMembers(ctx, "gophers")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.True(t, members[1].IsOnline)

	_, err = q.ListMembers(ctx, "nope")
	assert.Error(t, err)
}

func TestEconomyQueries(t *testing.T) {
	s := seeded(t)
	q := NewEconomyQueries(s)

	rewards, err := q.ListRewards(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, rewards, 2)
	assert.Equal(t, "mug", rewards[0].ID)
	assert.True(t, rewards[0].Affordable)
	assert.False(t, rewards[1].Affordable)

	rec, _ := economy.NewCompletionRecord("bob", "meetup", economy.KindEvent, time.Now())
	require.NoError(t, s.InsertCompletion(ctx, rec))
	activities, err := q.ListActivities(ctx, "", "bob")
	require.NoError(t, err)
	require.Len(t, activities, 2)
	assert.False(t, activities[0].Completed)
	assert.True(t, activities[1].Completed)

	require.NoError(t, s.InsertRedemption(ctx, economy.NewRedemption("r1", "bob", "mug", time.Now().Add(-time.Hour))))
	require.NoError(t, s.InsertRedemption(ctx, economy.NewRedemption("r2", "bob", "mug", time.Now())))
	list, err := q.ListRedemptions(ctx, economy.RedemptionFilter{AccountID: "bob"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r2", list[0].ID)
	assert.Equal(t, "Mug", list[0].RewardName)
}

func TestAnalytics(t *testing.T) {
	s := seeded(t)
	require.NoError(t, s.InsertRedemption(ctx, economy.NewRedemption("r1", "bob", "mug", time.Now())))

	h := NewAnalyticsHandler(s, stubPresence{"alice": true, "bob": true}, "online")
	res, err := h.Handle(ctx)
	require.NoError(t, err)
	assert.Equal(t, &AnalyticsDTO{
		Accounts:           4,
		Admins:             1,
		Courses:            1,
		Events:             1,
		Redemptions:        1,
		PendingRedemptions: 1,
		Online:             2,
	}, res)
}
