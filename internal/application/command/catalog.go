package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alem-hub/xp-economy/internal/domain/account"
	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/internal/domain/social"
	"github.com/alem-hub/xp-economy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG COMMANDS (admin)
// Rewards, activities, badges and groups are managed by admins and are
// read-only to the economy operations.
// ══════════════════════════════════════════════════════════════════════════════

// CatalogHandler manages catalog entries.
type CatalogHandler struct {
	store economy.Store
	opts  options
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(store economy.Store, opts ...Option) *CatalogHandler {
	return &CatalogHandler{store: store, opts: buildOptions(opts)}
}

// PutReward creates or replaces a reward.
func (h *CatalogHandler) PutReward(ctx context.Context, actor Actor, r *economy.Reward) error {
	return h.put(actor, "reward", r.ID, func() error { return h.store.PutReward(ctx, r) })
}

// PutActivity creates or replaces a course or event.
func (h *CatalogHandler) PutActivity(ctx context.Context, actor Actor, a *economy.Activity) error {
	return h.put(actor, "activity", a.ID, func() error {
		if a.BadgeID != "" {
			if _, err := h.store.GetBadge(ctx, a.BadgeID); err != nil {
				return err
			}
		}
		return h.store.PutActivity(ctx, a)
	})
}

// PutBadge creates or replaces a badge.
func (h *CatalogHandler) PutBadge(ctx context.Context, actor Actor, b *economy.Badge) error {
	return h.put(actor, "badge", b.ID, func() error { return h.store.PutBadge(ctx, b) })
}

// PutGroup creates or replaces a study group.
func (h *CatalogHandler) PutGroup(ctx context.Context, actor Actor, g *social.Group) error {
	return h.put(actor, "group", g.ID, func() error { return h.store.PutGroup(ctx, g) })
}

// CreateAccount registers an account on behalf of the identity provider.
func (h *CatalogHandler) CreateAccount(ctx context.Context, actor Actor, id, displayName string, role account.Role) (*account.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	acc, err := account.New(id, displayName, role, h.opts.now())
	if err != nil {
		return nil, err
	}
	if err := h.store.CreateAccount(ctx, acc); err != nil {
		if shared.IsAlreadyExists(err) {
			return nil, err
		}
		return nil, fmt.Errorf("create_account: %w", err)
	}
	h.opts.log.Info("account created", logger.AccountID(acc.ID), logger.String("role", string(acc.Role)))
	return acc, nil
}

// ProfileUpdate lists the account fields an admin may change. Nil fields are kept.
type ProfileUpdate struct {
	DisplayName *string
	Role        *account.Role
}

// UpdateAccount changes an account's display name or role. XP and streak are untouched.
func (h *CatalogHandler) UpdateAccount(ctx context.Context, actor Actor, id string, upd ProfileUpdate) (*account.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	cur, err := h.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	name, role := cur.DisplayName, cur.Role
	if upd.DisplayName != nil {
		name = strings.TrimSpace(*upd.DisplayName)
	}
	if upd.Role != nil {
		role = *upd.Role
	}

	acc, err := h.store.UpdateProfile(ctx, id, name, role)
	if err != nil {
		if shared.IsValidation(err) || shared.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("update_account: %w", err)
	}
	h.opts.log.Info("account updated",
		logger.Operation("admin_account_update"),
		logger.AccountID(acc.ID),
		logger.String("role", string(acc.Role)),
		logger.String("by", actor.AccountID),
	)
	return acc, nil
}

// DeleteReward removes a reward. Rewards that were already redeemed stay.
func (h *CatalogHandler) DeleteReward(ctx context.Context, actor Actor, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := h.store.DeleteReward(ctx, id); err != nil {
		if shared.IsNotFound(err) || errors.Is(err, shared.ErrRewardInUse) {
			return err
		}
		return fmt.Errorf("delete_reward: %w", err)
	}
	h.opts.log.Info("catalog entry deleted",
		logger.AccountID(actor.AccountID),
		logger.String("kind", "reward"),
		logger.String("id", id),
	)
	return nil
}

func (h *CatalogHandler) put(actor Actor, kind, id string, fn func() error) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if shared.IsValidation(err) || shared.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("put_%s: %w", kind, err)
	}
	h.opts.log.Info("catalog entry saved",
		logger.AccountID(actor.AccountID),
		logger.String("kind", kind),
		logger.String("id", id),
	)
	return nil
}
