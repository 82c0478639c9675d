package eventhandler

import (
	"context"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON BALANCE CHANGED HANDLER
// Любое изменение XP может сдвинуть лидерборд, поэтому закэшированные
// лидерборды сбрасываются. Следующий запрос перестроит их из хранилища.
// ═══════════════════════════════════════════════════════════════════════════

// LeaderboardInvalidator - то, что обработчику нужно от кэша лидерборда.
type LeaderboardInvalidator interface {
	InvalidateLeaderboard(ctx context.Context) error
}

// invalidateTimeout ограничивает обращение к кэшу из обработчика.
const invalidateTimeout = 2 * time.Second

// OnBalanceChangedHandler сбрасывает кэш лидерборда.
type OnBalanceChangedHandler struct {
	cache LeaderboardInvalidator
	log   *logger.Logger
}

// NewOnBalanceChangedHandler создаёт обработчик.
func NewOnBalanceChangedHandler(cache LeaderboardInvalidator, log *logger.Logger) *OnBalanceChangedHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &OnBalanceChangedHandler{
		cache: cache,
		log:   log.With(logger.String("handler", "on_balance_changed")),
	}
}

// EventTypes - события, на которые подписывается обработчик.
func (h *OnBalanceChangedHandler) EventTypes() []shared.EventType {
	return []shared.EventType{shared.EventXPCredited, shared.EventXPDebited}
}

// Handle реализует shared.EventHandler.
func (h *OnBalanceChangedHandler) Handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()

	if err := h.cache.InvalidateLeaderboard(ctx); err != nil {
		h.log.Warn("failed to invalidate leaderboard",
			logger.AccountID(event.AggregateID()),
			logger.Err(err),
		)
		return err
	}

	h.log.Debug("leaderboard invalidated", logger.AccountID(event.AggregateID()))
	return nil
}
