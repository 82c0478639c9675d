package economy

import (
	"strings"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/shared"
)

// RedemptionStatus - статус обмена. Переход только Pending -> Completed.
type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionCompleted RedemptionStatus = "completed"
)

// IsValid проверяет статус.
func (s RedemptionStatus) IsValid() bool {
	return s == RedemptionPending || s == RedemptionCompleted
}

// ParseRedemptionStatus разбирает статус; пустая строка - без фильтра.
func ParseRedemptionStatus(s string) (RedemptionStatus, error) {
	st := RedemptionStatus(strings.ToLower(strings.TrimSpace(s)))
	if st == "" || st.IsValid() {
		return st, nil
	}
	return "", shared.NewDomainError("redemption", "Validate", shared.ErrInvalidInput, "unknown redemption status")
}

// Redemption - запись об обмене XP на награду.
// Создаётся атомарно вместе со списанием XP.
type Redemption struct {
	ID          string
	AccountID   string
	RewardID    string
	Status      RedemptionStatus
	RedeemedAt  time.Time
	FulfilledAt *time.Time
}

// NewRedemption создаёт обмен в статусе Pending.
func NewRedemption(id, accountID, rewardID string, now time.Time) *Redemption {
	return &Redemption{
		ID:         id,
		AccountID:  accountID,
		RewardID:   rewardID,
		Status:     RedemptionPending,
		RedeemedAt: now.UTC(),
	}
}

// Fulfill переводит обмен в Completed.
// Повторный вызов на Completed - успешный no-op (changed=false).
func (r *Redemption) Fulfill(now time.Time) (changed bool) {
	if r.Status == RedemptionCompleted {
		return false
	}
	at := now.UTC()
	r.Status = RedemptionCompleted
	r.FulfilledAt = &at
	return true
}

// Clone возвращает независимую копию.
func (r *Redemption) Clone() *Redemption {
	c := *r
	if r.FulfilledAt != nil {
		at := *r.FulfilledAt
		c.FulfilledAt = &at
	}
	return &c
}

// RedemptionFilter - фильтр для списка обменов. Пустые поля не фильтруют.
type RedemptionFilter struct {
	AccountID string
	Status    RedemptionStatus
	Limit     int
}

// Matches проверяет запись на соответствие фильтру (без учёта Limit).
func (f RedemptionFilter) Matches(r *Redemption) bool {
	if f.AccountID != "" && r.AccountID != f.AccountID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}
