package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/xp-economy/config"
	"github.com/alem-hub/xp-economy/internal/application/command"
	"github.com/alem-hub/xp-economy/internal/application/presence"
	"github.com/alem-hub/xp-economy/internal/application/query"
	"github.com/alem-hub/xp-economy/internal/domain/account"
	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/internal/domain/social"
	"github.com/alem-hub/xp-economy/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/xp-economy/pkg/retry"
)

type testEnv struct {
	t      *testing.T
	store  *memory.Store
	server *Server
}

func newTestEnv(t *testing.T, tweaks ...func(*Dependencies)) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	for _, a := range []struct {
		id   string
		role account.Role
	}{{"root", account.RoleAdmin}, {"alice", account.RoleStudent}, {"bob", account.RoleStudent}} {
		acc, err := account.New(a.id, a.id, a.role, time.Now())
		require.NoError(t, err)
		require.NoError(t, store.CreateAccount(ctx, acc))
	}
	require.NoError(t, store.PutBadge(ctx, &economy.Badge{ID: "gopher", Name: "Gopher"}))
	require.NoError(t, store.PutActivity(ctx, &economy.Activity{ID: "go-101", Kind: economy.KindCourse, Title: "Go 101", XPReward: 500, BadgeID: "gopher"}))
	require.NoError(t, store.PutReward(ctx, &economy.Reward{ID: "mug", Name: "Mug", XPCost: 300}))
	require.NoError(t, store.PutReward(ctx, &economy.Reward{ID: "hoodie", Name: "Hoodie", XPCost: 5000}))
	require.NoError(t, store.PutGroup(ctx, &social.Group{ID: "gophers", Name: "Gophers"}))

	opts := []command.Option{command.WithRetrier(retry.New(retry.WithMaxAttempts(1)))}
	svc := presence.NewService(nil)

	health := NewHealthChecker("test")
	health.AddCheck("store", PingCheck(store))

	deps := Dependencies{
		Bootstrap:        command.NewBootstrapSessionHandler(store, opts...),
		RecordCompletion: command.NewRecordCompletionHandler(store, opts...),
		Redeem:           command.NewRedeemRewardHandler(store, opts...),
		MarkFulfilled:    command.NewMarkFulfilledHandler(store, opts...),
		Connections:      command.NewConnectionHandler(store, opts...),
		Memberships:      command.NewMembershipHandler(store, opts...),
		Catalog:          command.NewCatalogHandler(store, opts...),
		Profile:          query.NewGetProfileHandler(store, svc),
		Leaderboard:      query.NewGetLeaderboardHandler(store, nil, nil),
		Economy:          query.NewEconomyQueries(store),
		Social:           query.NewSocialQueries(store, svc, presence.DefaultChannel),
		Analytics:        query.NewAnalyticsHandler(store, svc, presence.DefaultChannel),
		Presence:         svc,
		Health:           health,
	}
	for _, tweak := range tweaks {
		tweak(&deps)
	}
	server := NewServer(DefaultConfig(), deps)
	return &testEnv{t: t, store: store, server: server}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *ResponseMeta   `json:"meta"`
}

// do sends a request as the given account ("" for anonymous, "root" is admin).
func (e *testEnv) do(method, path, as string, body any) (int, envelope) {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if as != "" {
		req.Header.Set(HeaderAccountID, as)
		if as == "root" {
			req.Header.Set(HeaderAccountRole, "admin")
		}
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestServer_HealthAndIdentity(t *testing.T) {
	e := newTestEnv(t)

	code, env := e.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, decode[HealthStatus](t, env).Healthy)

	code, env = e.do(http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", env.Error.Code)

	code, _ = e.do(http.MethodGet, "/api/v1/admin/analytics", "alice", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = e.do(http.MethodGet, "/api/v1/nope", "alice", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestServer_SessionProvisionsOnce(t *testing.T) {
	e := newTestEnv(t)

	code, env := e.do(http.MethodPost, "/api/v1/session", "carol", map[string]string{"display_name": "Carol"})
	require.Equal(t, http.StatusCreated, code)
	res := decode[sessionResponse](t, env)
	assert.True(t, res.Created)
	assert.True(t, res.StreakChanged)
	assert.Equal(t, 1, res.Account.CurrentStreak)

	code, env = e.do(http.MethodPost, "/api/v1/session", "carol", nil)
	require.Equal(t, http.StatusOK, code)
	res = decode[sessionResponse](t, env)
	assert.False(t, res.Created)
	assert.False(t, res.StreakChanged)

	code, env = e.do(http.MethodPost, "/api/v1/session", "carol", map[string]string{"timezone": "Mars/Olympus"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_request", env.Error.Code)
}

func TestServer_CompletionAwardsOnce(t *testing.T) {
	e := newTestEnv(t)
	body := map[string]string{"activity_id": "go-101", "kind": "course"}

	code, env := e.do(http.MethodPost, "/api/v1/completions", "alice", body)
	require.Equal(t, http.StatusCreated, code)
	res := decode[completionResponse](t, env)
	assert.Equal(t, string(economy.OutcomeAwarded), res.Outcome)
	assert.Equal(t, int64(500), res.XPAwarded)
	assert.Equal(t, "gopher", res.BadgeAwarded)

	code, env = e.do(http.MethodPost, "/api/v1/completions", "alice", body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(economy.OutcomeAlreadyCompleted), decode[completionResponse](t, env).Outcome)

	code, env = e.do(http.MethodGet, "/api/v1/me", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	profile := decode[query.GetProfileResult](t, env)
	assert.Equal(t, int64(500), profile.Account.XP)
	require.Len(t, profile.Ledger, 1)

	code, env = e.do(http.MethodGet, "/api/v1/badges", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, env.Meta.TotalCount)

	code, _ = e.do(http.MethodPost, "/api/v1/completions", "alice", map[string]string{"activity_id": "go-101", "kind": "webinar"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(http.MethodPost, "/api/v1/completions", "alice", map[string]string{"activity_id": "missing", "kind": "event"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = e.do(http.MethodPost, "/api/v1/completions", "alice", map[string]any{"activity_id": "go-101", "extra": 1})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_RedeemAndFulfill(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.store.Credit(context.Background(), "alice", 400, economy.Cause{Reason: economy.ReasonCompletion, ReferenceID: "seed"})
	require.NoError(t, err)

	code, env := e.do(http.MethodPost, "/api/v1/rewards/hoodie/redeem", "alice", nil)
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "insufficient_xp", env.Error.Code)

	code, _ = e.do(http.MethodPost, "/api/v1/rewards/yacht/redeem", "alice", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = e.do(http.MethodPost, "/api/v1/rewards/mug/redeem", "alice", nil)
	require.Equal(t, http.StatusCreated, code)
	redeemed := decode[redeemResponse](t, env)
	assert.Equal(t, int64(100), redeemed.NewBalance)
	assert.Equal(t, "pending", redeemed.Redemption.Status)
	id := redeemed.Redemption.ID

	fulfill := fmt.Sprintf("/api/v1/admin/redemptions/%s/fulfill", id)
	code, _ = e.do(http.MethodPost, fulfill, "alice", nil)
	assert.Equal(t, http.StatusForbidden, code)

	for _, changed := range []bool{true, false} {
		code, env = e.do(http.MethodPost, fulfill, "root", nil)
		require.Equal(t, http.StatusOK, code)
		res := decode[fulfillResponse](t, env)
		assert.Equal(t, changed, res.Changed)
		assert.Equal(t, "completed", res.Redemption.Status)
	}

	code, env = e.do(http.MethodGet, "/api/v1/redemptions", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	mine := decode[[]query.RedemptionDTO](t, env)
	require.Len(t, mine, 1)
	assert.Equal(t, "Mug", mine[0].RewardName)

	code, env = e.do(http.MethodGet, "/api/v1/admin/redemptions?status=pending", "root", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]query.RedemptionDTO](t, env))

	code, _ = e.do(http.MethodGet, "/api/v1/admin/redemptions?status=lost", "root", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_ConnectionLifecycle(t *testing.T) {
	e := newTestEnv(t)

	code, env := e.do(http.MethodPost, "/api/v1/connections/bob", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, social.StatusPendingSent, decode[connectionResponse](t, env).Status)

	code, env = e.do(http.MethodPost, "/api/v1/connections/alice", "bob", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", env.Error.Code)

	code, _ = e.do(http.MethodPost, "/api/v1/connections/bob/accept", "alice", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = e.do(http.MethodGet, "/api/v1/admin/connections/pending", "root", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]query.ConnectionDTO](t, env), 1)

	code, env = e.do(http.MethodPost, "/api/v1/connections/alice/accept", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, social.StatusConnected, decode[connectionResponse](t, env).Status)

	code, _ = e.do(http.MethodPost, "/api/v1/admin/connections/alice/bob/reject", "root", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, env = e.do(http.MethodDelete, "/api/v1/connections/bob", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, social.StatusNotConnected, decode[connectionResponse](t, env).Status)

	code, _ = e.do(http.MethodDelete, "/api/v1/connections/bob", "alice", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_GroupMembership(t *testing.T) {
	e := newTestEnv(t)

	code, env := e.do(http.MethodPost, "/api/v1/groups/gophers/join", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(social.MembershipPending), decode[membershipResponse](t, env).Status)

	approve := "/api/v1/admin/groups/gophers/members/alice/approve"
	for _, changed := range []bool{true, false} {
		code, env = e.do(http.MethodPost, approve, "root", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, changed, decode[changedResponse](t, env).Changed)
	}

	code, _ = e.do(http.MethodPost, "/api/v1/admin/groups/gophers/members/bob", "root", nil)
	require.Equal(t, http.StatusOK, code)

	code, env = e.do(http.MethodGet, "/api/v1/groups", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	groups := decode[[]query.GroupDTO](t, env)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Members)
	assert.Equal(t, string(social.MembershipMember), groups[0].ViewerStatus)

	code, env = e.do(http.MethodDelete, "/api/v1/admin/groups/gophers", "root", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, decode[deleteGroupResponse](t, env).MembersRemoved)

	code, _ = e.do(http.MethodGet, "/api/v1/groups/gophers/members", "alice", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_PresenceSharedWithAnalytics(t *testing.T) {
	e := newTestEnv(t)

	code, env := e.do(http.MethodPost, "/api/v1/presence/online", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, decode[heartbeatResponse](t, env).Token)

	code, env = e.do(http.MethodGet, "/api/v1/presence/online", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"alice"}, decode[presenceResponse](t, env).Online)

	code, env = e.do(http.MethodGet, "/api/v1/admin/analytics", "root", nil)
	require.Equal(t, http.StatusOK, code)
	stats := decode[query.AnalyticsDTO](t, env)
	assert.Equal(t, 1, stats.Online)
	assert.Equal(t, 3, stats.Accounts)

	code, env = e.do(http.MethodGet, "/api/v1/connections", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	for _, p := range decode[[]query.PeerDTO](t, env) {
		assert.Equal(t, p.ID == "alice", p.IsOnline, p.ID)
	}

	code, _ = e.do(http.MethodDelete, "/api/v1/presence/online", "alice", nil)
	require.Equal(t, http.StatusNoContent, code)

	code, env = e.do(http.MethodGet, "/api/v1/presence/online", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[presenceResponse](t, env).Online)
}

func TestServer_AdminCatalog(t *testing.T) {
	e := newTestEnv(t)

	code, _ := e.do(http.MethodPost, "/api/v1/admin/rewards", "root", rewardRequest{ID: "sticker", Name: "Sticker", XPCost: 50})
	require.Equal(t, http.StatusOK, code)

	code, _ = e.do(http.MethodPost, "/api/v1/admin/rewards", "root", rewardRequest{ID: "free", Name: "Free", XPCost: 0})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(http.MethodPost, "/api/v1/admin/activities", "root", activityRequest{ID: "conf", Kind: "event", Title: "Conf", XPReward: 200})
	require.Equal(t, http.StatusOK, code)

	code, env := e.do(http.MethodGet, "/api/v1/activities?kind=event", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]query.ActivityDTO](t, env), 1)

	code, _ = e.do(http.MethodPost, "/api/v1/admin/accounts", "root", accountRequest{ID: "dave", DisplayName: "Dave"})
	require.Equal(t, http.StatusCreated, code)
	code, _ = e.do(http.MethodPost, "/api/v1/admin/accounts", "root", accountRequest{ID: "dave", DisplayName: "Dave"})
	assert.Equal(t, http.StatusConflict, code)

	code, env = e.do(http.MethodGet, "/api/v1/rewards", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	rewards := decode[[]query.RewardDTO](t, env)
	require.Len(t, rewards, 3)
	assert.Equal(t, "sticker", rewards[0].ID)
}

func TestServer_AdminAccountAndRewardEdits(t *testing.T) {
	e := newTestEnv(t)
	name, role, bogus := "Alice L.", "admin", "owner"

	code, env := e.do(http.MethodPatch, "/api/v1/admin/accounts/alice", "root", accountUpdateRequest{DisplayName: &name})
	require.Equal(t, http.StatusOK, code)
	acc := decode[query.AccountDTO](t, env)
	assert.Equal(t, "Alice L.", acc.DisplayName)
	assert.Equal(t, "student", acc.Role)

	code, env = e.do(http.MethodPatch, "/api/v1/admin/accounts/alice", "root", accountUpdateRequest{Role: &role})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "admin", decode[query.AccountDTO](t, env).Role)

	code, _ = e.do(http.MethodPatch, "/api/v1/admin/accounts/alice", "root", accountUpdateRequest{Role: &bogus})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.do(http.MethodPatch, "/api/v1/admin/accounts/ghost", "root", accountUpdateRequest{Role: &role})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.do(http.MethodPatch, "/api/v1/admin/accounts/bob", "alice", accountUpdateRequest{Role: &role})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = e.do(http.MethodDelete, "/api/v1/admin/rewards/hoodie", "root", nil)
	require.Equal(t, http.StatusNoContent, code)
	code, _ = e.do(http.MethodDelete, "/api/v1/admin/rewards/hoodie", "root", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = e.do(http.MethodGet, "/api/v1/rewards", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	rewards := decode[[]query.RewardDTO](t, env)
	require.Len(t, rewards, 1)
	assert.Equal(t, "mug", rewards[0].ID)
}

func TestServer_Leaderboard(t *testing.T) {
	e := newTestEnv(t)
	cause := economy.Cause{Reason: economy.ReasonCompletion, ReferenceID: "seed"}
	_, err := e.store.Credit(context.Background(), "bob", 700, cause)
	require.NoError(t, err)
	_, err = e.store.Credit(context.Background(), "alice", 300, cause)
	require.NoError(t, err)

	code, env := e.do(http.MethodGet, "/api/v1/leaderboard?limit=2", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	entries := decode[[]query.LeaderboardEntryDTO](t, env)
	require.Len(t, entries, 2)
	assert.Equal(t, "bob", entries[0].AccountID)
	assert.Equal(t, "alice", entries[1].AccountID)

	code, _ = e.do(http.MethodGet, "/api/v1/leaderboard?limit=-1", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{shared.ErrInsufficientXP, http.StatusConflict, "insufficient_xp"},
		{fmt.Errorf("wrapped: %w", shared.ErrRewardNotFound), http.StatusNotFound, "not_found"},
		{shared.ErrAdminRequired, http.StatusForbidden, "forbidden"},
		{shared.ErrInvalidKind, http.StatusBadRequest, "invalid_request"},
		{shared.ErrConnectionExists, http.StatusConflict, "conflict"},
		{shared.ErrNotPending, http.StatusConflict, "conflict"},
		{shared.ErrConnectionChanged, http.StatusConflict, "conflict"},
		{shared.ErrRewardInUse, http.StatusConflict, "conflict"},
		{shared.ErrTimeout, http.StatusServiceUnavailable, "unavailable"},
		{context.DeadlineExceeded, http.StatusServiceUnavailable, "unavailable"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		status, code := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestHealthChecker_OptionalChecksDegradeOnly(t *testing.T) {
	h := NewHealthChecker("v")
	h.AddCheck("store", func(context.Context) error { return nil })
	h.AddOptionalCheck("redis", func(context.Context) error { return errors.New("down") })

	status := h.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.False(t, status.Checks["redis"].Healthy)

	h.AddCheck("store", func(context.Context) error { return errors.New("gone") })
	status = h.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Message, "store")
}

func TestServer_FeatureGates(t *testing.T) {
	flags := config.NewFeatureFlags()
	require.NoError(t, flags.DisableFeature(config.FeatureGroups))
	flags.SetAccountOverride("bob", config.FeatureGroups, true)

	e := newTestEnv(t, func(d *Dependencies) { d.Features = flags })

	code, env := e.do(http.MethodGet, "/api/v1/groups", "alice", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "feature_disabled", env.Error.Code)

	code, _ = e.do(http.MethodGet, "/api/v1/groups", "bob", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = e.do(http.MethodGet, "/api/v1/groups", "root", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = e.do(http.MethodGet, "/api/v1/rewards", "alice", nil)
	assert.Equal(t, http.StatusOK, code)
}
