package eventhandler

import (
	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// AUDIT HANDLER
// Пишет каждое событие в структурированный лог одной строкой.
// ═══════════════════════════════════════════════════════════════════════════

// AuditHandler логирует все доменные события.
type AuditHandler struct {
	log *logger.Logger
}

// NewAuditHandler создаёт обработчик аудита.
func NewAuditHandler(log *logger.Logger) *AuditHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &AuditHandler{log: log.With(logger.Component("audit"))}
}

// Handle реализует shared.EventHandler.
func (h *AuditHandler) Handle(event shared.Event) error {
	h.log.Info("domain event",
		logger.String("event_type", string(event.EventType())),
		logger.String("aggregate_id", event.AggregateID()),
		logger.Time("occurred_at", event.OccurredAt()),
		logger.Any("payload", event.Payload()),
	)
	return nil
}
