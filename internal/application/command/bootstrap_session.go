package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/account"
	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOOTSTRAP SESSION COMMAND
// Runs once per session start. Provisions the account on first sight and
// advances the daily login streak. The streak write is conditional on the
// last login the handler read, so parallel sessions count a day once.
// ══════════════════════════════════════════════════════════════════════════════

// BootstrapSessionCommand identifies the caller starting a session.
type BootstrapSessionCommand struct {
	Actor       Actor
	DisplayName string

	// Location is the caller's timezone for calendar-day comparison. Nil means UTC.
	Location *time.Location
}

// BootstrapSessionResult is the account after the session was counted.
type BootstrapSessionResult struct {
	Account        *account.Account
	Created        bool
	StreakChanged  bool
	PreviousStreak int
}

// BootstrapSessionHandler handles BootstrapSessionCommand.
type BootstrapSessionHandler struct {
	store economy.Store
	opts  options
}

// NewBootstrapSessionHandler creates a new BootstrapSessionHandler.
func NewBootstrapSessionHandler(store economy.Store, opts ...Option) *BootstrapSessionHandler {
	return &BootstrapSessionHandler{store: store, opts: buildOptions(opts)}
}

// Handle executes the command.
func (h *BootstrapSessionHandler) Handle(ctx context.Context, cmd BootstrapSessionCommand) (*BootstrapSessionResult, error) {
	if cmd.Actor.AccountID == "" {
		return nil, shared.NewDomainError("account", "Bootstrap", shared.ErrInvalidID, "account_id is required")
	}
	loc := cmd.Location
	if loc == nil {
		loc = time.UTC
	}
	now := h.opts.now()
	today := now.In(loc)

	result := &BootstrapSessionResult{}
	acc, err := h.opts.getAccount(ctx, h.store, cmd.Actor.AccountID)
	if shared.IsNotFound(err) {
		acc, result.Created, err = h.provision(ctx, cmd, now)
	}
	if err != nil {
		return nil, fmt.Errorf("bootstrap_session: %w", err)
	}
	result.Account = acc
	result.PreviousStreak = acc.CurrentStreak

	if acc.LoginRecorded(today) {
		return result, nil
	}

	streak, lastLogin := account.NextStreak(acc.LastLoginDate, acc.CurrentStreak, today)
	err = h.store.RecordLogin(ctx, acc.ID, acc.LastLoginDate, streak, lastLogin)
	if errors.Is(err, shared.ErrStreakAlreadyCounted) {
		// Another session counted this login first.
		fresh, err := h.store.GetAccount(ctx, acc.ID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap_session: %w", err)
		}
		result.Account = fresh
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bootstrap_session: failed to record login: %w", err)
	}

	acc.CurrentStreak = streak
	acc.LastLoginDate = &lastLogin
	result.StreakChanged = true

	h.opts.log.Debug("login streak updated",
		logger.AccountID(acc.ID),
		logger.Int("previous", result.PreviousStreak),
		logger.Int("current", streak),
	)
	h.opts.publish(shared.NewStreakUpdatedEvent(acc.ID, result.PreviousStreak, streak))
	return result, nil
}

func (h *BootstrapSessionHandler) provision(ctx context.Context, cmd BootstrapSessionCommand, now time.Time) (*account.Account, bool, error) {
	name := cmd.DisplayName
	if name == "" {
		name = cmd.Actor.AccountID
	}
	role := cmd.Actor.Role
	if !role.IsValid() {
		role = account.RoleStudent
	}
	acc, err := account.New(cmd.Actor.AccountID, name, role, now)
	if err != nil {
		return nil, false, err
	}
	if err := h.store.CreateAccount(ctx, acc); err != nil {
		if shared.IsAlreadyExists(err) {
			acc, err = h.store.GetAccount(ctx, acc.ID)
			return acc, false, err
		}
		return nil, false, err
	}
	h.opts.log.Info("account provisioned", logger.AccountID(acc.ID), logger.String("role", string(role)))
	return acc, true, nil
}
