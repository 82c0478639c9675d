package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/pkg/logger"
	"github.com/alem-hub/xp-economy/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD COMPLETION COMMAND
// Records that an account finished a course or event and awards its XP.
// The completion row is the only proof of completion: a duplicate insert
// means the XP was already granted, so the award is skipped.
// ══════════════════════════════════════════════════════════════════════════════

// RecordCompletionCommand contains the data to record a completion.
type RecordCompletionCommand struct {
	AccountID  string
	ActivityID string
	Kind       economy.ActivityKind
}

// Validate validates the command.
func (c RecordCompletionCommand) Validate() error {
	if c.AccountID == "" {
		return shared.NewDomainError("completion", "Validate", shared.ErrInvalidID, "account_id is required")
	}
	if c.ActivityID == "" {
		return shared.NewDomainError("completion", "Validate", shared.ErrInvalidID, "activity_id is required")
	}
	if !c.Kind.IsValid() {
		return shared.ErrInvalidKind
	}
	return nil
}

// RecordCompletionResult contains the outcome of a completion.
type RecordCompletionResult struct {
	Outcome economy.CompletionOutcome

	// XPAwarded is zero unless Outcome is awarded.
	XPAwarded  int64
	NewBalance int64

	// BadgeAwarded is set when this completion granted a new badge.
	BadgeAwarded string

	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordCompletionHandler handles RecordCompletionCommand.
type RecordCompletionHandler struct {
	store economy.Store
	opts  options
}

// NewRecordCompletionHandler creates a new RecordCompletionHandler.
func NewRecordCompletionHandler(store economy.Store, opts ...Option) *RecordCompletionHandler {
	return &RecordCompletionHandler{store: store, opts: buildOptions(opts)}
}

// Handle executes the command.
//
// A failure before the completion row exists returns OutcomeFailed and leaves
// nothing behind. A credit failure after the row is inserted also returns
// OutcomeFailed; the row is kept and the divergence is logged for reconciliation.
func (h *RecordCompletionHandler) Handle(ctx context.Context, cmd RecordCompletionCommand) (*RecordCompletionResult, error) {
	result := &RecordCompletionResult{Outcome: economy.OutcomeFailed}

	if err := cmd.Validate(); err != nil {
		return result, err
	}

	log := h.opts.log.With(
		logger.Operation("record_completion"),
		logger.AccountID(cmd.AccountID),
		logger.ActivityID(cmd.ActivityID),
		logger.String("kind", string(cmd.Kind)),
	)

	activity, err := retry.Run(ctx, h.opts.retrier, func(ctx context.Context) (*economy.Activity, error) {
		return h.store.GetActivity(ctx, cmd.Kind, cmd.ActivityID)
	})
	if err != nil {
		return result, fmt.Errorf("record_completion: %w", err)
	}

	rec, err := economy.NewCompletionRecord(cmd.AccountID, cmd.ActivityID, cmd.Kind, h.opts.now())
	if err != nil {
		return result, err
	}

	// Not retried: a lost acknowledgement would turn into AlreadyCompleted
	// and silently skip the credit.
	if err := h.store.InsertCompletion(ctx, rec); err != nil {
		if shared.IsAlreadyCompleted(err) {
			log.Debug("completion already recorded")
			result.Outcome = economy.OutcomeAlreadyCompleted
			return result, nil
		}
		return result, fmt.Errorf("record_completion: failed to insert completion: %w", err)
	}
	result.Events = append(result.Events,
		shared.NewCompletionRecordedEvent(rec.AccountID, rec.ActivityID, string(rec.Kind)))

	balance, err := h.store.Credit(ctx, rec.AccountID, activity.XPReward, economy.CompletionCause(rec))
	if err != nil {
		log.Error("completion recorded but XP not credited",
			logger.XPAmount(activity.XPReward),
			logger.Err(err),
		)
		h.opts.publish(result.Events...)
		return result, fmt.Errorf("record_completion: failed to credit xp: %w", err)
	}

	result.Outcome = economy.OutcomeAwarded
	result.XPAwarded = activity.XPReward
	result.NewBalance = balance
	result.Events = append(result.Events, shared.NewBalanceChangedEvent(
		rec.AccountID, activity.XPReward, balance, string(economy.ReasonCompletion), rec.ReferenceID()))

	if activity.AwardsBadge() {
		h.awardBadge(ctx, log, rec, activity.BadgeID, result)
	}

	log.Info("completion awarded",
		logger.XPAmount(activity.XPReward),
		logger.Int64("balance", balance),
	)
	h.opts.publish(result.Events...)
	return result, nil
}

// awardBadge grants the course badge. Awarding is idempotent and its failure
// does not change the outcome: the XP is already credited.
func (h *RecordCompletionHandler) awardBadge(ctx context.Context, log *logger.Logger, rec economy.CompletionRecord, badgeID string, result *RecordCompletionResult) {
	created, err := retry.Run(ctx, h.opts.retrier, func(ctx context.Context) (bool, error) {
		return h.store.AwardBadge(ctx, economy.AccountBadge{
			AccountID: rec.AccountID,
			BadgeID:   badgeID,
			AwardedAt: h.opts.now().UTC(),
		})
	})
	if err != nil {
		log.Warn("failed to award badge", logger.String("badge_id", badgeID), logger.Err(err))
		return
	}
	if created {
		result.BadgeAwarded = badgeID
		result.Events = append(result.Events, shared.NewBadgeAwardedEvent(rec.AccountID, badgeID))
	}
}
