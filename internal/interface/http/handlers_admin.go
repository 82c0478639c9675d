package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alem-hub/xp-economy/internal/application/command"
	"github.com/alem-hub/xp-economy/internal/application/query"
	"github.com/alem-hub/xp-economy/internal/domain/account"
	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/social"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG MANAGEMENT
// Admin-only upserts of rewards, activities, badges, groups and accounts,
// plus account profile edits and reward removal.
// ══════════════════════════════════════════════════════════════════════════════

type rewardRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	XPCost      int64  `json:"xp_cost"`
}

func (s *Server) handlePutReward(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	reward := &economy.Reward{ID: req.ID, Name: req.Name, Description: req.Description, Icon: req.Icon, XPCost: req.XPCost}
	if err := s.deps.Catalog.PutReward(r.Context(), mustActor(r), reward); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, req)
}

type activityRequest struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	XPReward int64  `json:"xp_reward"`
	BadgeID  string `json:"badge_id,omitempty"`
}

func (s *Server) handlePutActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	kind, err := economy.ParseKind(req.Kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	activity := &economy.Activity{ID: req.ID, Kind: kind, Title: req.Title, XPReward: req.XPReward, BadgeID: req.BadgeID}
	if err := s.deps.Catalog.PutActivity(r.Context(), mustActor(r), activity); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, req)
}

type badgeRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

func (s *Server) handlePutBadge(w http.ResponseWriter, r *http.Request) {
	var req badgeRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	badge := &economy.Badge{ID: req.ID, Name: req.Name, Description: req.Description, Icon: req.Icon}
	if err := s.deps.Catalog.PutBadge(r.Context(), mustActor(r), badge); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, req)
}

type groupRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

func (s *Server) handlePutGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	group := &social.Group{ID: req.ID, Name: req.Name, Description: req.Description, Icon: req.Icon}
	if err := s.deps.Catalog.PutGroup(r.Context(), mustActor(r), group); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, req)
}

type accountRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := s.deps.Catalog.CreateAccount(r.Context(), mustActor(r), req.ID, req.DisplayName, account.ParseRole(req.Role))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, query.NewAccountDTO(acc, false))
}

type accountUpdateRequest struct {
	DisplayName *string `json:"display_name"`
	Role        *string `json:"role"`
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountUpdateRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	upd := command.ProfileUpdate{DisplayName: req.DisplayName}
	if req.Role != nil {
		// Unknown roles fail validation.
		role := account.Role(strings.ToLower(strings.TrimSpace(*req.Role)))
		upd.Role = &role
	}
	acc, err := s.deps.Catalog.UpdateAccount(r.Context(), mustActor(r), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.NewAccountDTO(acc, false))
}

func (s *Server) handleDeleteReward(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Catalog.DeleteReward(r.Context(), mustActor(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
