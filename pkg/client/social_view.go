package client

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/xp-economy/internal/application/projection"
	"github.com/alem-hub/xp-economy/internal/domain/social"
)

// SocialView is the caller's connections and memberships as a UI would show
// them: the last listing from the server with in-flight changes on top.
// A failed call rolls its key back; Refresh discards everything pending.
type SocialView struct {
	client      *Client
	connections *projection.Optimistic[string, social.ViewerStatus]
	memberships *projection.Optimistic[string, string]
}

// NewSocialView creates an empty view. Call Refresh to load it.
func NewSocialView(c *Client) *SocialView {
	return &SocialView{
		client:      c,
		connections: projection.NewOptimistic[string, social.ViewerStatus](),
		memberships: projection.NewOptimistic[string, string](),
	}
}

// Refresh reloads both listings from the server.
func (v *SocialView) Refresh(ctx context.Context) error {
	conns := make(map[string]social.ViewerStatus)
	members := make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		peers, err := v.client.Peers(gctx)
		for _, p := range peers {
			conns[p.ID] = p.Status
		}
		return err
	})
	g.Go(func() error {
		groups, err := v.client.Groups(gctx)
		for _, gr := range groups {
			if gr.ViewerStatus != "" {
				members[gr.ID] = gr.ViewerStatus
			}
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	v.connections.Refresh(conns)
	v.memberships.Refresh(members)
	return nil
}

// Connect shows pending_sent for userID until the server answers.
func (v *SocialView) Connect(ctx context.Context, userID string) (social.ViewerStatus, error) {
	return v.connections.Apply(ctx, userID, social.StatusPendingSent, func(ctx context.Context) (social.ViewerStatus, error) {
		return v.client.RequestConnection(ctx, userID)
	})
}

// Accept shows connected for userID until the server answers.
func (v *SocialView) Accept(ctx context.Context, userID string) (social.ViewerStatus, error) {
	return v.connections.Apply(ctx, userID, social.StatusConnected, func(ctx context.Context) (social.ViewerStatus, error) {
		return v.client.AcceptConnection(ctx, userID)
	})
}

// Disconnect shows not_connected for userID until the server answers.
func (v *SocialView) Disconnect(ctx context.Context, userID string) (social.ViewerStatus, error) {
	return v.connections.Apply(ctx, userID, social.StatusNotConnected, func(ctx context.Context) (social.ViewerStatus, error) {
		return v.client.RemoveConnection(ctx, userID)
	})
}

// JoinGroup shows a pending request for groupID until the server answers.
func (v *SocialView) JoinGroup(ctx context.Context, groupID string) (string, error) {
	return v.memberships.Apply(ctx, groupID, string(social.MembershipPending), func(ctx context.Context) (string, error) {
		return v.client.JoinGroup(ctx, groupID)
	})
}

// ConnectionStatus returns the visible status with userID.
func (v *SocialView) ConnectionStatus(userID string) social.ViewerStatus {
	if s, ok := v.connections.Get(userID); ok {
		return s
	}
	return social.StatusNotConnected
}

// MembershipStatus returns the visible status in groupID, "" if none.
func (v *SocialView) MembershipStatus(groupID string) string {
	s, _ := v.memberships.Get(groupID)
	return s
}

// IsPending reports an unanswered change for userID or groupID.
func (v *SocialView) IsPending(key string) bool {
	return v.connections.IsPending(key) || v.memberships.IsPending(key)
}
