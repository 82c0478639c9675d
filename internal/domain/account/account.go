// Package account содержит доменную модель аккаунта участника сообщества:
// баланс XP, роль и серию ежедневных входов.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package account

import (
	"strings"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Role - роль аккаунта, выданная провайдером идентичности.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// IsValid проверяет, что роль известна.
func (r Role) IsValid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// ParseRole разбирает роль из строки; неизвестные значения дают student.
func ParseRole(s string) Role {
	if Role(strings.ToLower(strings.TrimSpace(s))) == RoleAdmin {
		return RoleAdmin
	}
	return RoleStudent
}

// XPPerLevel - сколько XP нужно на один уровень.
const XPPerLevel = 1000

// Level вычисляет уровень по балансу: каждые 1000 XP = +1 уровень, начиная с 1.
func Level(xp int64) int {
	if xp < 0 {
		return 1
	}
	return int(xp/XPPerLevel) + 1
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Account - аккаунт участника.
// XP и серия меняются только через леджер и bootstrap сессии, никогда напрямую.
type Account struct {
	ID            string
	DisplayName   string
	Role          Role
	XP            int64
	CurrentStreak int
	// LastLoginDate - календарная дата (полночь UTC), nil если входов не было.
	LastLoginDate *time.Time
	CreatedAt     time.Time
}

// New создаёт аккаунт с нулевым балансом.
func New(id, displayName string, role Role, now time.Time) (*Account, error) {
	a := &Account{
		ID:          strings.TrimSpace(id),
		DisplayName: strings.TrimSpace(displayName),
		Role:        role,
		CreatedAt:   now.UTC(),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate проверяет инварианты аккаунта.
func (a *Account) Validate() error {
	if a.ID == "" {
		return shared.NewDomainError("account", "Validate", shared.ErrInvalidID, "account id is required")
	}
	if !a.Role.IsValid() {
		return shared.NewDomainError("account", "Validate", shared.ErrInvalidInput, "unknown role")
	}
	if a.XP < 0 {
		return shared.NewDomainError("account", "Validate", shared.ErrNegativeValue, "xp cannot be negative")
	}
	if a.CurrentStreak < 0 {
		return shared.NewDomainError("account", "Validate", shared.ErrNegativeValue, "streak cannot be negative")
	}
	return nil
}

// IsAdmin - true для администраторов.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Level возвращает текущий уровень аккаунта.
func (a *Account) Level() int {
	return Level(a.XP)
}

// Clone возвращает независимую копию (для хранилищ в памяти).
func (a *Account) Clone() *Account {
	c := *a
	if a.LastLoginDate != nil {
		d := *a.LastLoginDate
		c.LastLoginDate = &d
	}
	return &c
}
