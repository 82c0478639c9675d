package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alem-hub/xp-economy/internal/application/command"
	"github.com/alem-hub/xp-economy/internal/application/query"
	"github.com/alem-hub/xp-economy/internal/domain/social"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTIONS
// ══════════════════════════════════════════════════════════════════════════════

type connectionResponse struct {
	Status     social.ViewerStatus  `json:"status"`
	Connection *query.ConnectionDTO `json:"connection,omitempty"`
}

func newConnectionResponse(res *command.ConnectionResult) connectionResponse {
	out := connectionResponse{Status: res.Status}
	if c := res.Connection; c != nil {
		out.Connection = &query.ConnectionDTO{
			UserA:        c.UserA,
			UserB:        c.UserB,
			Status:       string(c.Status),
			ActionUserID: c.ActionUserID,
			UpdatedAt:    c.UpdatedAt,
		}
	}
	return out
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Social.ListAccountsWithStatus(r.Context(), mustActor(r).AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, list)
}

func (s *Server) handleRequestConnection(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Connections.Request(r.Context(), mustActor(r), chi.URLParam(r, "userID"))
	s.writeConnection(w, r, res, err)
}

func (s *Server) handleAcceptConnection(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Connections.Accept(r.Context(), mustActor(r), chi.URLParam(r, "userID"))
	s.writeConnection(w, r, res, err)
}

func (s *Server) handleRemoveConnection(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Connections.Remove(r.Context(), mustActor(r), chi.URLParam(r, "userID"))
	s.writeConnection(w, r, res, err)
}

func (s *Server) handleAdminAcceptConnection(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Connections.AdminAccept(r.Context(), mustActor(r), chi.URLParam(r, "a"), chi.URLParam(r, "b"))
	s.writeConnection(w, r, res, err)
}

func (s *Server) handleAdminRejectConnection(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Connections.AdminReject(r.Context(), mustActor(r), chi.URLParam(r, "a"), chi.URLParam(r, "b"))
	s.writeConnection(w, r, res, err)
}

func (s *Server) writeConnection(w http.ResponseWriter, r *http.Request, res *command.ConnectionResult, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newConnectionResponse(res))
}

func (s *Server) handleListPendingConnections(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Social.ListPendingConnections(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, list)
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUPS
// ══════════════════════════════════════════════════════════════════════════════

type membershipResponse struct {
	GroupID   string    `json:"group_id"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newMembershipResponse(m *social.Membership) membershipResponse {
	return membershipResponse{GroupID: m.GroupID, UserID: m.UserID, Status: string(m.Status), UpdatedAt: m.UpdatedAt}
}

type changedResponse struct {
	Changed bool `json:"changed"`
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Social.ListGroups(r.Context(), mustActor(r).AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, list)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Social.ListMembers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, list)
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Memberships.RequestJoin(r.Context(), mustActor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newMembershipResponse(m))
}

func (s *Server) handleAdminAddMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Memberships.AdminAdd(r.Context(), mustActor(r), chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newMembershipResponse(m))
}

// handleApproveMember reports changed=false when there was no pending request.
func (s *Server) handleApproveMember(w http.ResponseWriter, r *http.Request) {
	ok, err := s.deps.Memberships.Approve(r.Context(), mustActor(r), chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, changedResponse{Changed: ok})
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	removed, err := s.deps.Memberships.Remove(r.Context(), mustActor(r), chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, changedResponse{Changed: removed})
}

type deleteGroupResponse struct {
	MembersRemoved int `json:"members_removed"`
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Memberships.DeleteGroup(r.Context(), mustActor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, deleteGroupResponse{MembersRemoved: n})
}
