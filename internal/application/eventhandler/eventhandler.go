// Package eventhandler содержит подписчиков доменных событий.
// Подписчики реагируют на уже зафиксированные в хранилище изменения:
// пишут аудит и сбрасывают кэши. Ошибка подписчика не откатывает операцию.
package eventhandler

import (
	"errors"
	"fmt"

	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/pkg/logger"
)

// Register подписывает стандартные обработчики на шину.
// cache может быть nil - тогда лидерборд не кэшируется и сбрасывать нечего.
func Register(bus shared.EventSubscriber, cache LeaderboardInvalidator, log *logger.Logger) error {
	var errs []error

	if err := bus.SubscribeAll(NewAuditHandler(log).Handle); err != nil {
		errs = append(errs, fmt.Errorf("audit: %w", err))
	}

	if cache != nil {
		h := NewOnBalanceChangedHandler(cache, log)
		for _, t := range h.EventTypes() {
			if err := bus.Subscribe(t, h.Handle); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", t, err))
			}
		}
	}

	return errors.Join(errs...)
}
