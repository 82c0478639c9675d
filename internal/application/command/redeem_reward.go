package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/pkg/logger"
	"github.com/alem-hub/xp-economy/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDEEM REWARD COMMAND
// Spends XP on a catalog reward. Reward lookup, debit and the redemption
// insert run in one store transaction: either all three happen or none.
// ══════════════════════════════════════════════════════════════════════════════

// RedeemRewardCommand contains the data to redeem a reward.
type RedeemRewardCommand struct {
	AccountID string
	RewardID  string
}

// Validate validates the command.
func (c RedeemRewardCommand) Validate() error {
	if c.AccountID == "" || c.RewardID == "" {
		return shared.NewDomainError("redemption", "Validate", shared.ErrInvalidID, "account_id and reward_id are required")
	}
	return nil
}

// RedeemRewardResult contains the created redemption.
type RedeemRewardResult struct {
	Redemption *economy.Redemption
	XPSpent    int64
	NewBalance int64
	Events     []shared.Event
}

// RedeemRewardHandler handles RedeemRewardCommand.
type RedeemRewardHandler struct {
	store economy.Store
	opts  options
	newID func() string
}

// NewRedeemRewardHandler creates a new RedeemRewardHandler.
func NewRedeemRewardHandler(store economy.Store, opts ...Option) *RedeemRewardHandler {
	return &RedeemRewardHandler{
		store: store,
		opts:  buildOptions(opts),
		newID: uuid.NewString,
	}
}

// Handle executes the command. Insufficient balance returns shared.ErrInsufficientXP
// and a missing reward returns shared.ErrRewardNotFound; in both cases nothing changes.
func (h *RedeemRewardHandler) Handle(ctx context.Context, cmd RedeemRewardCommand) (*RedeemRewardResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	redemption := economy.NewRedemption(h.newID(), cmd.AccountID, cmd.RewardID, h.opts.now())
	result := &RedeemRewardResult{Redemption: redemption}

	err := h.store.WithinTx(ctx, func(tx economy.Store) error {
		reward, err := tx.GetReward(ctx, cmd.RewardID)
		if err != nil {
			return err
		}
		balance, err := tx.Debit(ctx, cmd.AccountID, reward.XPCost, economy.RedemptionCause(redemption.ID))
		if err != nil {
			return err
		}
		if err := tx.InsertRedemption(ctx, redemption); err != nil {
			return err
		}
		result.XPSpent = reward.XPCost
		result.NewBalance = balance
		return nil
	})
	if err != nil {
		if shared.IsInsufficientFunds(err) || shared.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("redeem_reward: %w", err)
	}

	result.Events = []shared.Event{
		shared.NewBalanceChangedEvent(cmd.AccountID, -result.XPSpent, result.NewBalance,
			string(economy.ReasonRedemption), redemption.ID),
		shared.NewRewardRedeemedEvent(redemption.ID, cmd.AccountID, cmd.RewardID),
	}
	h.opts.log.Info("reward redeemed",
		logger.Operation("redeem_reward"),
		logger.AccountID(cmd.AccountID),
		logger.RewardID(cmd.RewardID),
		logger.String("redemption_id", redemption.ID),
		logger.XPAmount(result.XPSpent),
	)
	h.opts.publish(result.Events...)
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MARK FULFILLED COMMAND (admin)
// Moves a redemption from pending to completed. Repeating it is a no-op.
// ══════════════════════════════════════════════════════════════════════════════

// MarkFulfilledCommand contains the redemption to fulfill.
type MarkFulfilledCommand struct {
	Actor        Actor
	RedemptionID string
}

// MarkFulfilledResult reports whether this call changed the status.
type MarkFulfilledResult struct {
	Redemption *economy.Redemption
	Changed    bool
}

// MarkFulfilledHandler handles MarkFulfilledCommand.
type MarkFulfilledHandler struct {
	store economy.Store
	opts  options
}

// NewMarkFulfilledHandler creates a new MarkFulfilledHandler.
func NewMarkFulfilledHandler(store economy.Store, opts ...Option) *MarkFulfilledHandler {
	return &MarkFulfilledHandler{store: store, opts: buildOptions(opts)}
}

// Handle executes the command.
func (h *MarkFulfilledHandler) Handle(ctx context.Context, cmd MarkFulfilledCommand) (*MarkFulfilledResult, error) {
	if err := requireAdmin(cmd.Actor); err != nil {
		return nil, err
	}
	if cmd.RedemptionID == "" {
		return nil, shared.NewDomainError("redemption", "Validate", shared.ErrInvalidID, "redemption_id is required")
	}

	// Fulfilment is idempotent, so transient failures are retried.
	changed, err := retry.Run(ctx, h.opts.retrier, func(ctx context.Context) (bool, error) {
		return h.store.CompleteRedemption(ctx, cmd.RedemptionID, h.opts.now())
	})
	if err != nil {
		return nil, fmt.Errorf("mark_fulfilled: %w", err)
	}

	redemption, err := h.store.GetRedemption(ctx, cmd.RedemptionID)
	if err != nil {
		return nil, fmt.Errorf("mark_fulfilled: %w", err)
	}

	if changed {
		h.opts.log.Info("redemption fulfilled",
			logger.Operation("mark_fulfilled"),
			logger.String("redemption_id", redemption.ID),
			logger.AccountID(redemption.AccountID),
		)
		h.opts.publish(shared.NewRedemptionFulfilledEvent(redemption.ID, redemption.AccountID, redemption.RewardID))
	}
	return &MarkFulfilledResult{Redemption: redemption, Changed: changed}, nil
}
