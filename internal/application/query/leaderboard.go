package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Топ-N аккаунтов по XP. Ничьи упорядочены по ID аккаунта.
// Результат кэшируется на короткое время и сбрасывается при изменении XP.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultLeaderboardLimit - размер лидерборда по умолчанию.
	DefaultLeaderboardLimit = 10
	// MaxLeaderboardLimit - максимальный размер.
	MaxLeaderboardLimit = 100
)

// LeaderboardEntryDTO - запись лидерборда.
type LeaderboardEntryDTO struct {
	Rank        int    `json:"rank"`
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	XP          int64  `json:"xp"`
	Level       int    `json:"level"`
}

// LeaderboardCache - кэш готового лидерборда.
type LeaderboardCache interface {
	GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntryDTO, bool, error)
	SetLeaderboard(ctx context.Context, limit int, entries []LeaderboardEntryDTO) error
	InvalidateLeaderboard(ctx context.Context) error
}

// GetLeaderboardQuery - параметры запроса.
type GetLeaderboardQuery struct {
	// Limit - размер (по умолчанию 10, максимум 100).
	Limit int
}

// Validate нормализует параметры.
func (q *GetLeaderboardQuery) Validate() error {
	if q.Limit < 0 {
		return shared.NewDomainError("leaderboard", "Validate", shared.ErrValueOutOfRange, "limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = DefaultLeaderboardLimit
	}
	if q.Limit > MaxLeaderboardLimit {
		q.Limit = MaxLeaderboardLimit
	}
	return nil
}

// GetLeaderboardResult - результат.
type GetLeaderboardResult struct {
	Entries   []LeaderboardEntryDTO `json:"entries"`
	FromCache bool                  `json:"from_cache"`
}

// GetLeaderboardHandler обрабатывает GetLeaderboardQuery.
type GetLeaderboardHandler struct {
	store economy.AccountStore
	cache LeaderboardCache
	log   *logger.Logger
}

// NewGetLeaderboardHandler создаёт обработчик. cache может быть nil.
func NewGetLeaderboardHandler(store economy.AccountStore, cache LeaderboardCache, log *logger.Logger) *GetLeaderboardHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &GetLeaderboardHandler{store: store, cache: cache, log: log}
}

// Handle выполняет запрос. Ошибки кэша не ломают запрос: читаем из хранилища.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if h.cache != nil {
		entries, ok, err := h.cache.GetLeaderboard(ctx, q.Limit)
		if err != nil {
			h.log.Warn("leaderboard cache read failed", logger.Err(err))
		} else if ok {
			return &GetLeaderboardResult{Entries: entries, FromCache: true}, nil
		}
	}

	entries, err := h.Build(ctx, q.Limit)
	if err != nil {
		return nil, err
	}
	if h.cache != nil {
		if err := h.cache.SetLeaderboard(ctx, q.Limit, entries); err != nil {
			h.log.Warn("leaderboard cache write failed", logger.Err(err))
		}
	}
	return &GetLeaderboardResult{Entries: entries}, nil
}

// Build строит лидерборд из хранилища, минуя кэш.
func (h *GetLeaderboardHandler) Build(ctx context.Context, limit int) ([]LeaderboardEntryDTO, error) {
	top, err := h.store.TopAccounts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load top accounts: %w", err)
	}
	entries := make([]LeaderboardEntryDTO, 0, len(top))
	for i, acc := range top {
		entries = append(entries, LeaderboardEntryDTO{
			Rank:        i + 1,
			AccountID:   acc.ID,
			DisplayName: acc.DisplayName,
			XP:          acc.XP,
			Level:       acc.Level(),
		})
	}
	return entries, nil
}

// Warm перестраивает кэш для стандартного размера.
func (h *GetLeaderboardHandler) Warm(ctx context.Context) error {
	if h.cache == nil {
		return nil
	}
	entries, err := h.Build(ctx, DefaultLeaderboardLimit)
	if err != nil {
		return err
	}
	return h.cache.SetLeaderboard(ctx, DefaultLeaderboardLimit, entries)
}
