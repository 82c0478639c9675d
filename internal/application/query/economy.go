package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/economy"
)

// ══════════════════════════════════════════════════════════════════════════════
// REWARDS & REDEMPTIONS QUERY
// Каталог наград (по возрастанию стоимости) и история обменов.
// ══════════════════════════════════════════════════════════════════════════════

// RewardDTO - награда каталога с флагом доступности для наблюдателя.
type RewardDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	XPCost      int64  `json:"xp_cost"`
	Affordable  bool   `json:"affordable"`
}

// RedemptionDTO - обмен.
type RedemptionDTO struct {
	ID          string     `json:"id"`
	AccountID   string     `json:"account_id"`
	RewardID    string     `json:"reward_id"`
	RewardName  string     `json:"reward_name,omitempty"`
	Status      string     `json:"status"`
	RedeemedAt  time.Time  `json:"redeemed_at"`
	FulfilledAt *time.Time `json:"fulfilled_at,omitempty"`
}

// NewRedemptionDTO строит DTO обмена.
func NewRedemptionDTO(r *economy.Redemption, rewardName string) RedemptionDTO {
	return RedemptionDTO{
		ID:          r.ID,
		AccountID:   r.AccountID,
		RewardID:    r.RewardID,
		RewardName:  rewardName,
		Status:      string(r.Status),
		RedeemedAt:  r.RedeemedAt,
		FulfilledAt: r.FulfilledAt,
	}
}

// ActivityDTO - курс или мероприятие каталога.
type ActivityDTO struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	XPReward  int64  `json:"xp_reward"`
	BadgeID   string `json:"badge_id,omitempty"`
	Completed bool   `json:"completed"`
}

// EconomyQueries - запросы по каталогу и обменам.
type EconomyQueries struct {
	store economy.Store
}

// NewEconomyQueries создаёт набор запросов.
func NewEconomyQueries(store economy.Store) *EconomyQueries {
	return &EconomyQueries{store: store}
}

// ListRewards возвращает каталог. Если viewer задан, отмечает доступные по балансу.
func (q *EconomyQueries) ListRewards(ctx context.Context, viewer string) ([]RewardDTO, error) {
	rewards, err := q.store.ListRewards(ctx)
	if err != nil {
		return nil, err
	}
	var balance int64 = -1
	if viewer != "" {
		acc, err := q.store.GetAccount(ctx, viewer)
		if err != nil {
			return nil, err
		}
		balance = acc.XP
	}

	out := make([]RewardDTO, 0, len(rewards))
	for _, r := range rewards {
		out = append(out, RewardDTO{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Icon:        r.Icon,
			XPCost:      r.XPCost,
			Affordable:  balance >= r.XPCost,
		})
	}
	return out, nil
}

// ListActivities возвращает курсы и/или мероприятия с отметкой о завершении viewer.
func (q *EconomyQueries) ListActivities(ctx context.Context, kind economy.ActivityKind, viewer string) ([]ActivityDTO, error) {
	activities, err := q.store.ListActivities(ctx, kind)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool)
	if viewer != "" {
		completions, err := q.store.ListCompletions(ctx, viewer)
		if err != nil {
			return nil, fmt.Errorf("failed to list completions: %w", err)
		}
		for _, c := range completions {
			done[string(c.Kind)+":"+c.ActivityID] = true
		}
	}

	out := make([]ActivityDTO, 0, len(activities))
	for _, a := range activities {
		out = append(out, ActivityDTO{
			ID:        a.ID,
			Kind:      string(a.Kind),
			Title:     a.Title,
			XPReward:  a.XPReward,
			BadgeID:   a.BadgeID,
			Completed: done[string(a.Kind)+":"+a.ID],
		})
	}
	return out, nil
}

// ListRedemptions возвращает обмены по фильтру, новые первыми.
func (q *EconomyQueries) ListRedemptions(ctx context.Context, filter economy.RedemptionFilter) ([]RedemptionDTO, error) {
	list, err := q.store.ListRedemptions(ctx, filter)
	if err != nil {
		return nil, err
	}
	rewards, err := q.store.ListRewards(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(rewards))
	for _, r := range rewards {
		names[r.ID] = r.Name
	}

	out := make([]RedemptionDTO, 0, len(list))
	for _, r := range list {
		out = append(out, NewRedemptionDTO(r, names[r.RewardID]))
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN ANALYTICS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// AnalyticsDTO - агрегаты для админской панели.
type AnalyticsDTO struct {
	Accounts           int `json:"accounts"`
	Admins             int `json:"admins"`
	Courses            int `json:"courses"`
	Events             int `json:"events"`
	Redemptions        int `json:"redemptions"`
	PendingRedemptions int `json:"pending_redemptions"`
	Online             int `json:"online"`
}

// AnalyticsHandler - обработчик аналитики.
type AnalyticsHandler struct {
	store    economy.Store
	presence PresenceReader
	channel  string
}

// NewAnalyticsHandler создаёт обработчик. presence может быть nil.
func NewAnalyticsHandler(store economy.Store, presence PresenceReader, channel string) *AnalyticsHandler {
	if presence == nil {
		presence = noPresence{}
	}
	return &AnalyticsHandler{store: store, presence: presence, channel: channel}
}

// Handle собирает агрегаты. Число онлайн берётся из того же сервиса присутствия,
// что и бейджи "онлайн" у участников.
func (h *AnalyticsHandler) Handle(ctx context.Context) (*AnalyticsDTO, error) {
	counts, err := h.store.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count: %w", err)
	}
	pending, err := h.store.ListRedemptions(ctx, economy.RedemptionFilter{Status: economy.RedemptionPending})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending redemptions: %w", err)
	}
	return &AnalyticsDTO{
		Accounts:           counts.Accounts,
		Admins:             counts.Admins,
		Courses:            counts.Courses,
		Events:             counts.Events,
		Redemptions:        counts.Redemptions,
		PendingRedemptions: len(pending),
		Online:             h.presence.Count(h.channel),
	}, nil
}
