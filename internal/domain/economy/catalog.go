package economy

import (
	"strings"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/shared"
)

// Badge - неизменяемая запись каталога бейджей.
type Badge struct {
	ID          string
	Name        string
	Description string
	Icon        string
}

// Validate проверяет бейдж.
func (b *Badge) Validate() error {
	if strings.TrimSpace(b.ID) == "" || strings.TrimSpace(b.Name) == "" {
		return shared.NewDomainError("catalog", "Validate", shared.ErrEmptyValue, "badge id and name are required")
	}
	return nil
}

// AccountBadge - выданный бейдж. Повторная выдача - no-op, не ошибка.
type AccountBadge struct {
	AccountID string
	BadgeID   string
	AwardedAt time.Time
}

// Reward - награда, которую можно получить за XP. Только для чтения движком.
type Reward struct {
	ID          string
	Name        string
	Description string
	Icon        string
	XPCost      int64
}

// Validate проверяет награду.
func (r *Reward) Validate() error {
	if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.Name) == "" {
		return shared.NewDomainError("catalog", "Validate", shared.ErrEmptyValue, "reward id and name are required")
	}
	if r.XPCost <= 0 {
		return shared.NewDomainError("catalog", "Validate", shared.ErrValueOutOfRange, "xp cost must be positive")
	}
	return nil
}

// Counts - агрегаты для админской аналитики.
type Counts struct {
	Accounts    int
	Admins      int
	Courses     int
	Events      int
	Redemptions int
}
