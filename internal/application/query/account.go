// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/account"
	"github.com/alem-hub/xp-economy/internal/domain/economy"
)

// PresenceReader - то, что запросам нужно от сервиса присутствия.
type PresenceReader interface {
	IsOnline(channel, accountID string) bool
	Count(channel string) int
}

// noPresence используется, когда присутствие не подключено.
type noPresence struct{}

func (noPresence) IsOnline(string, string) bool { return false }
func (noPresence) Count(string) int             { return 0 }

// ══════════════════════════════════════════════════════════════════════════════
// DTO
// ══════════════════════════════════════════════════════════════════════════════

// AccountDTO - публичное представление аккаунта.
type AccountDTO struct {
	ID            string     `json:"id"`
	DisplayName   string     `json:"display_name"`
	Role          string     `json:"role"`
	XP            int64      `json:"xp"`
	Level         int        `json:"level"`
	CurrentStreak int        `json:"current_streak"`
	LastLoginDate *time.Time `json:"last_login_date,omitempty"`
	IsOnline      bool       `json:"is_online"`
}

// NewAccountDTO строит DTO из доменной сущности.
func NewAccountDTO(acc *account.Account, online bool) AccountDTO {
	return AccountDTO{
		ID:            acc.ID,
		DisplayName:   acc.DisplayName,
		Role:          string(acc.Role),
		XP:            acc.XP,
		Level:         acc.Level(),
		CurrentStreak: acc.CurrentStreak,
		LastLoginDate: acc.LastLoginDate,
		IsOnline:      online,
	}
}

// BadgeDTO - бейдж.
type BadgeDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// CompletionDTO - факт завершения.
type CompletionDTO struct {
	ActivityID  string    `json:"activity_id"`
	Kind        string    `json:"kind"`
	CompletedAt time.Time `json:"completed_at"`
}

// LedgerEntryDTO - строка журнала баланса.
type LedgerEntryDTO struct {
	Delta       int64     `json:"delta"`
	Balance     int64     `json:"balance"`
	Reason      string    `json:"reason"`
	ReferenceID string    `json:"reference_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// GET PROFILE QUERY
// Профиль аккаунта: баланс, уровень, серия входов, бейджи и завершения.
// ══════════════════════════════════════════════════════════════════════════════

// GetProfileQuery - параметры запроса профиля.
type GetProfileQuery struct {
	AccountID string

	// Channel - канал присутствия для флага IsOnline.
	Channel string

	// LedgerLimit - сколько последних строк журнала вернуть (0 = не возвращать).
	LedgerLimit int
}

// GetProfileResult - профиль аккаунта.
type GetProfileResult struct {
	Account     AccountDTO       `json:"account"`
	Badges      []BadgeDTO       `json:"badges"`
	Completions []CompletionDTO  `json:"completions"`
	Ledger      []LedgerEntryDTO `json:"ledger,omitempty"`
}

// GetProfileHandler обрабатывает GetProfileQuery.
type GetProfileHandler struct {
	store    economy.Store
	presence PresenceReader
}

// NewGetProfileHandler создаёт обработчик. presence может быть nil.
func NewGetProfileHandler(store economy.Store, presence PresenceReader) *GetProfileHandler {
	if presence == nil {
		presence = noPresence{}
	}
	return &GetProfileHandler{store: store, presence: presence}
}

// Handle выполняет запрос.
func (h *GetProfileHandler) Handle(ctx context.Context, q GetProfileQuery) (*GetProfileResult, error) {
	acc, err := h.store.GetAccount(ctx, q.AccountID)
	if err != nil {
		return nil, err
	}

	badges, err := h.store.ListAccountBadges(ctx, q.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	completions, err := h.store.ListCompletions(ctx, q.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}

	result := &GetProfileResult{
		Account:     NewAccountDTO(acc, h.presence.IsOnline(q.Channel, acc.ID)),
		Badges:      make([]BadgeDTO, 0, len(badges)),
		Completions: make([]CompletionDTO, 0, len(completions)),
	}
	for _, b := range badges {
		result.Badges = append(result.Badges, BadgeDTO{ID: b.ID, Name: b.Name, Description: b.Description, Icon: b.Icon})
	}
	for _, c := range completions {
		result.Completions = append(result.Completions, CompletionDTO{
			ActivityID:  c.ActivityID,
			Kind:        string(c.Kind),
			CompletedAt: c.CompletedAt,
		})
	}

	if q.LedgerLimit > 0 {
		entries, err := h.store.ListLedger(ctx, q.AccountID, q.LedgerLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to list ledger: %w", err)
		}
		for _, e := range entries {
			result.Ledger = append(result.Ledger, LedgerEntryDTO{
				Delta:       e.Delta,
				Balance:     e.Balance,
				Reason:      string(e.Reason),
				ReferenceID: e.ReferenceID,
				CreatedAt:   e.CreatedAt,
			})
		}
	}
	return result, nil
}
