package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/alem-hub/xp-economy/config"
	"github.com/alem-hub/xp-economy/internal/application/command"
	"github.com/alem-hub/xp-economy/internal/domain/account"
	"github.com/alem-hub/xp-economy/pkg/logger"
)

// Identity headers set by the authenticating gateway.
const (
	HeaderAccountID   = "X-Account-ID"
	HeaderAccountRole = "X-Account-Role"
	HeaderTimezone    = "X-Timezone"
)

// identityMiddleware reads the caller from the gateway headers.
// Unknown roles fall back to student.
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderAccountID))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		actor := command.Actor{AccountID: id, Role: account.ParseRole(r.Header.Get(HeaderAccountRole))}

		ctx := context.WithValue(r.Context(), contextKeyActor, actor)
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(logger.AccountID(id)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorFrom(r.Context()); !ok {
			writeJSONError(w, r, http.StatusUnauthorized, "unauthorized", HeaderAccountID+" header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor, _ := actorFrom(r.Context()); !actor.IsAdmin() {
			writeJSONError(w, r, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireFeature hides a route group when the feature is off for the caller.
func (s *Server) requireFeature(feature string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.deps.Features != nil {
				actor := mustActor(r)
				if !s.deps.Features.IsEnabled(feature, &config.FeatureContext{AccountID: actor.AccountID, IsAdmin: actor.IsAdmin()}) {
					writeJSONError(w, r, http.StatusNotFound, "feature_disabled", feature+" is disabled")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actorFrom(ctx context.Context) (command.Actor, bool) {
	actor, ok := ctx.Value(contextKeyActor).(command.Actor)
	return actor, ok
}

// mustActor is only called behind requireAccount.
func mustActor(r *http.Request) command.Actor {
	actor, _ := actorFrom(r.Context())
	return actor
}
