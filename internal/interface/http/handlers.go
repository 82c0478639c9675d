package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alem-hub/xp-economy/internal/application/command"
	"github.com/alem-hub/xp-economy/internal/application/presence"
	"github.com/alem-hub/xp-economy/internal/application/query"
	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ledger, err := queryInt(r, "ledger", 20)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.Profile.Handle(r.Context(), query.GetProfileQuery{
		AccountID:   mustActor(r).AccountID,
		Channel:     presence.DefaultChannel,
		LedgerLimit: ledger,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

type sessionRequest struct {
	DisplayName string `json:"display_name"`
	Timezone    string `json:"timezone"`
}

type sessionResponse struct {
	Account        query.AccountDTO `json:"account"`
	Created        bool             `json:"created"`
	StreakChanged  bool             `json:"streak_changed"`
	PreviousStreak int              `json:"previous_streak"`
}

// handleBootstrapSession provisions the account on first sight and counts today's login.
// The timezone comes from the body or the X-Timezone header.
func (s *Server) handleBootstrapSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tz := req.Timezone
	if tz == "" {
		tz = r.Header.Get(HeaderTimezone)
	}
	loc := s.config.DefaultLocation
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			writeError(w, r, shared.WrapError("session", "Validate", shared.ErrInvalidInput, "unknown timezone", err))
			return
		}
		loc = l
	}

	actor := mustActor(r)
	res, err := s.deps.Bootstrap.Handle(r.Context(), command.BootstrapSessionCommand{
		Actor:       actor,
		DisplayName: req.DisplayName,
		Location:    loc,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	online := s.deps.Presence != nil && s.deps.Presence.IsOnline(presence.DefaultChannel, actor.AccountID)
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, sessionResponse{
		Account:        query.NewAccountDTO(res.Account, online),
		Created:        res.Created,
		StreakChanged:  res.StreakChanged,
		PreviousStreak: res.PreviousStreak,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETIONS & BADGES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	var kind economy.ActivityKind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		k, err := economy.ParseKind(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		kind = k
	}
	list, err := s.deps.Economy.ListActivities(r.Context(), kind, mustActor(r).AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, list)
}

type completionRequest struct {
	ActivityID string `json:"activity_id"`
	Kind       string `json:"kind"`
}

type completionResponse struct {
	Outcome      string `json:"outcome"`
	XPAwarded    int64  `json:"xp_awarded"`
	NewBalance   int64  `json:"new_balance,omitempty"`
	BadgeAwarded string `json:"badge_awarded,omitempty"`
}

// handleRecordCompletion returns 201 when XP was awarded and 200 for a repeat.
func (s *Server) handleRecordCompletion(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	kind, err := economy.ParseKind(req.Kind)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.RecordCompletion.Handle(r.Context(), command.RecordCompletionCommand{
		AccountID:  mustActor(r).AccountID,
		ActivityID: req.ActivityID,
		Kind:       kind,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Outcome == economy.OutcomeAwarded {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, completionResponse{
		Outcome:      string(res.Outcome),
		XPAwarded:    res.XPAwarded,
		NewBalance:   res.NewBalance,
		BadgeAwarded: res.BadgeAwarded,
	})
}

func (s *Server) handleListCompletions(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Profile.Handle(r.Context(), query.GetProfileQuery{AccountID: mustActor(r).AccountID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, res.Completions)
}

func (s *Server) handleListBadges(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Profile.Handle(r.Context(), query.GetProfileQuery{AccountID: mustActor(r).AccountID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, res.Badges)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", query.DefaultLeaderboardLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.Leaderboard.Handle(r.Context(), query.GetLeaderboardQuery{Limit: limit})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, res.Entries)
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARDS & REDEMPTIONS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListRewards(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Economy.ListRewards(r.Context(), mustActor(r).AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, list)
}

type redeemResponse struct {
	Redemption query.RedemptionDTO `json:"redemption"`
	XPSpent    int64               `json:"xp_spent"`
	NewBalance int64               `json:"new_balance"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Redeem.Handle(r.Context(), command.RedeemRewardCommand{
		AccountID: mustActor(r).AccountID,
		RewardID:  chi.URLParam(r, "id"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, redeemResponse{
		Redemption: query.NewRedemptionDTO(res.Redemption, ""),
		XPSpent:    res.XPSpent,
		NewBalance: res.NewBalance,
	})
}

func (s *Server) handleListMyRedemptions(w http.ResponseWriter, r *http.Request) {
	s.listRedemptions(w, r, mustActor(r).AccountID)
}

func (s *Server) handleListAllRedemptions(w http.ResponseWriter, r *http.Request) {
	s.listRedemptions(w, r, r.URL.Query().Get("account_id"))
}

func (s *Server) listRedemptions(w http.ResponseWriter, r *http.Request, accountID string) {
	filter := economy.RedemptionFilter{AccountID: accountID}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := economy.ParseRedemptionStatus(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		filter.Status = st
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter.Limit = limit

	list, err := s.deps.Economy.ListRedemptions(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, list)
}

type fulfillResponse struct {
	Redemption query.RedemptionDTO `json:"redemption"`
	Changed    bool                `json:"changed"`
}

// handleFulfill is idempotent: a repeat returns 200 with changed=false.
func (s *Server) handleFulfill(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.MarkFulfilled.Handle(r.Context(), command.MarkFulfilledCommand{
		Actor:        mustActor(r),
		RedemptionID: chi.URLParam(r, "id"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, fulfillResponse{
		Redemption: query.NewRedemptionDTO(res.Redemption, ""),
		Changed:    res.Changed,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE
// ══════════════════════════════════════════════════════════════════════════════

type presenceResponse struct {
	Channel string   `json:"channel"`
	Online  []string `json:"online"`
	Count   int      `json:"count"`
}

func presenceChannel(r *http.Request) string {
	if ch := chi.URLParam(r, "channel"); ch != "" {
		return ch
	}
	return presence.DefaultChannel
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	ch := presenceChannel(r)
	resp := presenceResponse{Channel: ch, Online: []string{}}
	if s.deps.Presence != nil {
		if online := s.deps.Presence.Snapshot(ch); online != nil {
			resp.Online = online
		}
		resp.Count = len(resp.Online)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

type heartbeatRequest struct {
	Token string `json:"token"`
}

type heartbeatResponse struct {
	Channel string    `json:"channel"`
	Token   string    `json:"token"`
	SeenAt  time.Time `json:"seen_at"`
}

// handlePresenceJoin is the heartbeat: it marks the caller online and returns its token.
func (s *Server) handlePresenceJoin(w http.ResponseWriter, r *http.Request) {
	if s.deps.PresenceBroadcast == nil {
		writeJSONError(w, r, http.StatusServiceUnavailable, "unavailable", "presence is disabled")
		return
	}
	var req heartbeatRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ch := presenceChannel(r)
	entry, err := s.deps.PresenceBroadcast.Join(r.Context(), ch, mustActor(r).AccountID, req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, heartbeatResponse{Channel: ch, Token: entry.Token, SeenAt: entry.SeenAt})
}

func (s *Server) handlePresenceLeave(w http.ResponseWriter, r *http.Request) {
	if s.deps.PresenceBroadcast == nil {
		writeJSONError(w, r, http.StatusServiceUnavailable, "unavailable", "presence is disabled")
		return
	}
	if err := s.deps.PresenceBroadcast.Leave(r.Context(), presenceChannel(r), mustActor(r).AccountID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYTICS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Analytics.Handle(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}
