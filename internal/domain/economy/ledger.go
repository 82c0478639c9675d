package economy

import (
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/shared"
)

// Reason - причина изменения баланса.
type Reason string

const (
	ReasonCompletion Reason = "completion"
	ReasonRedemption Reason = "redemption"
)

// Cause связывает изменение баланса ровно с одним причинным событием.
type Cause struct {
	Reason      Reason
	ReferenceID string
}

// CompletionCause - причина начисления за завершение.
func CompletionCause(rec CompletionRecord) Cause {
	return Cause{Reason: ReasonCompletion, ReferenceID: rec.ReferenceID()}
}

// RedemptionCause - причина списания за обмен.
func RedemptionCause(redemptionID string) Cause {
	return Cause{Reason: ReasonRedemption, ReferenceID: redemptionID}
}

// LedgerEntry - строка журнала, записываемая в той же транзакции, что и изменение баланса.
// Журнал нужен для трассировки, баланс по нему не восстанавливается.
type LedgerEntry struct {
	AccountID   string
	Delta       int64
	Balance     int64
	Reason      Reason
	ReferenceID string
	CreatedAt   time.Time
}

// ValidateAmount проверяет, что сумма кредита/дебета положительна.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return shared.ErrInvalidAmount
	}
	return nil
}
