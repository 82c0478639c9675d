package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/internal/domain/social"
	"github.com/alem-hub/xp-economy/pkg/logger"
)

func reply(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func replyError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

// fakeAPI serves a fixed listing for alice and scripted write replies.
func fakeAPI(t *testing.T, r chi.Router) *Client {
	t.Helper()
	r.Get("/api/v1/connections", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "alice", req.Header.Get("X-Account-ID"))
		reply(w, http.StatusOK, []map[string]any{
			{"id": "bob", "display_name": "Bob", "connection_status": "not_connected"},
			{"id": "carol", "display_name": "Carol", "connection_status": "pending_received"},
		})
	})
	r.Get("/api/v1/groups", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, []map[string]any{
			{"id": "gophers", "name": "Gophers", "members": 3, "viewer_status": "member"},
			{"id": "rust", "name": "Rust", "members": 1},
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig(srv.URL, "alice")
	cfg.ReadRetryDelay = time.Millisecond
	cfg.Logger = logger.NewNop()
	return New(cfg)
}

func TestSocialView_PendingUntilServerAnswers(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	r := chi.NewRouter()
	r.Post("/api/v1/connections/{userID}", func(w http.ResponseWriter, req *http.Request) {
		close(entered)
		<-release
		reply(w, http.StatusOK, map[string]any{"status": "pending_sent"})
	})
	view := NewSocialView(fakeAPI(t, r))
	ctx := context.Background()

	require.NoError(t, view.Refresh(ctx))
	assert.Equal(t, social.StatusNotConnected, view.ConnectionStatus("bob"))
	assert.Equal(t, social.StatusPendingReceived, view.ConnectionStatus("carol"))
	assert.Equal(t, "member", view.MembershipStatus("gophers"))
	assert.Equal(t, "", view.MembershipStatus("rust"))

	done := make(chan error, 1)
	go func() {
		_, err := view.Connect(ctx, "bob")
		done <- err
	}()

	<-entered
	assert.Equal(t, social.StatusPendingSent, view.ConnectionStatus("bob"))
	assert.True(t, view.IsPending("bob"))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, social.StatusPendingSent, view.ConnectionStatus("bob"))
	assert.False(t, view.IsPending("bob"))
}

func TestSocialView_FailedCallRollsBack(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/v1/connections/{userID}/accept", func(w http.ResponseWriter, _ *http.Request) {
		replyError(w, http.StatusConflict, "conflict", "connection is not pending")
	})
	r.Post("/api/v1/groups/{id}/join", func(w http.ResponseWriter, _ *http.Request) {
		replyError(w, http.StatusNotFound, "not_found", "group not found")
	})
	view := NewSocialView(fakeAPI(t, r))
	ctx := context.Background()
	require.NoError(t, view.Refresh(ctx))

	_, err := view.Accept(ctx, "carol")
	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, social.StatusPendingReceived, view.ConnectionStatus("carol"))
	assert.False(t, view.IsPending("carol"))

	_, err = view.JoinGroup(ctx, "rust")
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, "", view.MembershipStatus("rust"))
}

func TestSocialView_RefreshDiscardsServerDivergence(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/v1/groups/{id}/join", func(w http.ResponseWriter, req *http.Request) {
		reply(w, http.StatusOK, map[string]any{"group_id": chi.URLParam(req, "id"), "status": "pending_request"})
	})
	view := NewSocialView(fakeAPI(t, r))
	ctx := context.Background()
	require.NoError(t, view.Refresh(ctx))

	status, err := view.JoinGroup(ctx, "rust")
	require.NoError(t, err)
	assert.Equal(t, "pending_request", status)
	assert.Equal(t, "pending_request", view.MembershipStatus("rust"))

	// The fake listing never learned about the request.
	require.NoError(t, view.Refresh(ctx))
	assert.Equal(t, "", view.MembershipStatus("rust"))
}

func TestClient_RetriesReadsOnly(t *testing.T) {
	var reads, writes atomic.Int32

	r := chi.NewRouter()
	r.Get("/api/v1/groups", func(w http.ResponseWriter, _ *http.Request) {
		if reads.Add(1) == 1 {
			replyError(w, http.StatusServiceUnavailable, "unavailable", "try again")
			return
		}
		reply(w, http.StatusOK, []map[string]any{{"id": "gophers", "name": "Gophers"}})
	})
	r.Delete("/api/v1/connections/{userID}", func(w http.ResponseWriter, _ *http.Request) {
		writes.Add(1)
		replyError(w, http.StatusServiceUnavailable, "unavailable", "try again")
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	cfg := DefaultConfig(srv.URL+"/", "alice")
	cfg.ReadRetryDelay = time.Millisecond
	cfg.Logger = logger.NewNop()
	c := New(cfg)
	ctx := context.Background()

	groups, err := c.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, int32(2), reads.Load())

	_, err = c.RemoveConnection(ctx, "bob")
	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))
	assert.Equal(t, int32(1), writes.Load())
}

func TestAPIError_Unwrap(t *testing.T) {
	tests := []struct {
		code   string
		status int
		check  func(error) bool
	}{
		{"not_found", 404, shared.IsNotFound},
		{"feature_disabled", 404, shared.IsNotFound},
		{"insufficient_xp", 409, shared.IsInsufficientFunds},
		{"conflict", 409, shared.IsConflict},
		{"forbidden", 403, shared.IsForbidden},
		{"invalid_request", 400, shared.IsValidation},
		{"rate_limited", 429, shared.IsRetryable},
		{"", 502, shared.IsRetryable},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := error(&APIError{StatusCode: tt.status, Code: tt.code})
			assert.True(t, tt.check(err))
		})
	}
}
