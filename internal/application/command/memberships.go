package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/internal/domain/social"
	"github.com/alem-hub/xp-economy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP MEMBERSHIP COMMANDS
// None -> PendingRequest -> Member, direct admin add, removal from any state.
// ══════════════════════════════════════════════════════════════════════════════

// statusRemoved is published when a membership record is deleted.
const statusRemoved = "none"

// MembershipHandler handles every group membership command.
type MembershipHandler struct {
	store economy.Store
	opts  options
}

// NewMembershipHandler creates a new MembershipHandler.
func NewMembershipHandler(store economy.Store, opts ...Option) *MembershipHandler {
	return &MembershipHandler{store: store, opts: buildOptions(opts)}
}

// RequestJoin files a join request for actor. An existing record in any status
// is left untouched and the call still succeeds; the returned membership is the stored one.
func (h *MembershipHandler) RequestJoin(ctx context.Context, actor Actor, groupID string) (*social.Membership, error) {
	m, err := social.NewJoinRequest(groupID, actor.AccountID, h.opts.now())
	if err != nil {
		return nil, err
	}
	created, err := h.store.InsertMembershipIfAbsent(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("request_join: %w", err)
	}
	if !created {
		return h.store.GetMembership(ctx, m.GroupID, m.UserID)
	}

	h.changed(actor, m.GroupID, m.UserID, string(m.Status))
	return &m, nil
}

// Approve promotes a pending request to member. It returns false without an
// error when there is no pending request to approve.
func (h *MembershipHandler) Approve(ctx context.Context, actor Actor, groupID, userID string) (bool, error) {
	if err := requireAdmin(actor); err != nil {
		return false, err
	}
	ok, err := h.store.SwapMembershipStatus(ctx, groupID, userID,
		social.MembershipPending, social.MembershipMember, h.opts.now())
	if err != nil {
		return false, fmt.Errorf("approve_membership: %w", err)
	}
	if ok {
		h.changed(actor, groupID, userID, string(social.MembershipMember))
	}
	return ok, nil
}

// AdminAdd makes userID a member regardless of the prior state.
func (h *MembershipHandler) AdminAdd(ctx context.Context, actor Actor, groupID, userID string) (*social.Membership, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := h.opts.getAccount(ctx, h.store, userID); err != nil {
		return nil, fmt.Errorf("admin_add_member: %w", err)
	}
	m, err := social.NewMember(groupID, userID, h.opts.now())
	if err != nil {
		return nil, err
	}
	if err := h.store.UpsertMembership(ctx, m); err != nil {
		return nil, fmt.Errorf("admin_add_member: %w", err)
	}
	h.changed(actor, groupID, userID, string(m.Status))
	return &m, nil
}

// Remove deletes the membership record in any status. Used both for
// removing a member and for rejecting a pending request.
// Returns false when there was nothing to remove.
func (h *MembershipHandler) Remove(ctx context.Context, actor Actor, groupID, userID string) (bool, error) {
	if err := requireAdmin(actor); err != nil {
		return false, err
	}
	removed, err := h.store.DeleteMembership(ctx, groupID, userID)
	if err != nil {
		return false, fmt.Errorf("remove_member: %w", err)
	}
	if removed {
		h.changed(actor, groupID, userID, statusRemoved)
	}
	return removed, nil
}

// DeleteGroup removes the group together with all of its memberships.
func (h *MembershipHandler) DeleteGroup(ctx context.Context, actor Actor, groupID string) (int, error) {
	if err := requireAdmin(actor); err != nil {
		return 0, err
	}
	removed, err := h.store.DeleteGroup(ctx, groupID)
	if err != nil {
		if shared.IsNotFound(err) {
			return 0, err
		}
		return 0, fmt.Errorf("delete_group: %w", err)
	}

	h.opts.log.Info("group deleted",
		logger.Operation("delete_group"),
		logger.AccountID(actor.AccountID),
		logger.GroupID(groupID),
		logger.Int("memberships_removed", removed),
	)
	h.opts.publish(shared.NewGroupDeletedEvent(groupID, removed))
	return removed, nil
}

func (h *MembershipHandler) changed(actor Actor, groupID, userID, status string) {
	h.opts.log.Info("membership changed",
		logger.AccountID(actor.AccountID),
		logger.GroupID(groupID),
		logger.String("user_id", userID),
		logger.String("status", status),
	)
	h.opts.publish(shared.NewMembershipChangedEvent(groupID, userID, status))
}
