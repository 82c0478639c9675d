package memory

import (
	"context"
	"sort"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
)

func activityKey(kind economy.ActivityKind, id string) string {
	return string(kind) + "|" + id
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) PutActivity(ctx context.Context, a *economy.Activity) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	s.st.activities[activityKey(a.Kind, a.ID)] = &cp
	return nil
}

func (s *Store) GetActivity(ctx context.Context, kind economy.ActivityKind, id string) (*economy.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.st.activities[activityKey(kind, id)]
	if !ok {
		return nil, shared.ErrActivityNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) ListActivities(ctx context.Context, kind economy.ActivityKind) ([]*economy.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*economy.Activity
	for _, a := range s.st.activities {
		if kind != "" && a.Kind != kind {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) PutReward(ctx context.Context, r *economy.Reward) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.st.rewards[r.ID] = &cp
	return nil
}

func (s *Store) GetReward(ctx context.Context, id string) (*economy.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.st.rewards[id]
	if !ok {
		return nil, shared.ErrRewardNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) DeleteReward(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.rewards[id]; !ok {
		return shared.ErrRewardNotFound
	}
	for _, r := range s.st.redemptions {
		if r.RewardID == id {
			return shared.ErrRewardInUse
		}
	}
	delete(s.st.rewards, id)
	return nil
}

func (s *Store) ListRewards(ctx context.Context) ([]*economy.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*economy.Reward, 0, len(s.st.rewards))
	for _, r := range s.st.rewards {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].XPCost != out[j].XPCost {
			return out[i].XPCost < out[j].XPCost
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) PutBadge(ctx context.Context, b *economy.Badge) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *b
	s.st.badges[b.ID] = &cp
	return nil
}

func (s *Store) GetBadge(ctx context.Context, id string) (*economy.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.st.badges[id]
	if !ok {
		return nil, shared.ErrBadgeNotFound
	}
	cp := *b
	return &cp, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETIONS & BADGES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) InsertCompletion(ctx context.Context, rec economy.CompletionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.accounts[rec.AccountID]; !ok {
		return shared.ErrAccountNotFound
	}
	key := rec.Key()
	if _, ok := s.st.completions[key]; ok {
		return shared.ErrAlreadyCompleted
	}
	s.st.completions[key] = rec
	return nil
}

func (s *Store) ListCompletions(ctx context.Context, accountID string) ([]economy.CompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []economy.CompletionRecord
	for _, rec := range s.st.completions {
		if rec.AccountID == accountID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (s *Store) AwardBadge(ctx context.Context, ab economy.AccountBadge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.accounts[ab.AccountID]; !ok {
		return false, shared.ErrAccountNotFound
	}
	if _, ok := s.st.badges[ab.BadgeID]; !ok {
		return false, shared.ErrBadgeNotFound
	}
	key := ab.AccountID + "|" + ab.BadgeID
	if _, ok := s.st.accountBadges[key]; ok {
		return false, nil
	}
	s.st.accountBadges[key] = ab
	return true, nil
}

func (s *Store) ListAccountBadges(ctx context.Context, accountID string) ([]economy.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []economy.Badge
	for _, ab := range s.st.accountBadges {
		if ab.AccountID != accountID {
			continue
		}
		if b, ok := s.st.badges[ab.BadgeID]; ok {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REDEMPTIONS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) InsertRedemption(ctx context.Context, r *economy.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.redemptions[r.ID]; ok {
		return shared.NewDomainError("redemption", "Insert", shared.ErrAlreadyExists, "redemption id already used")
	}
	if _, ok := s.st.rewards[r.RewardID]; !ok {
		return shared.ErrRewardNotFound
	}
	s.st.redemptions[r.ID] = r.Clone()
	return nil
}

func (s *Store) GetRedemption(ctx context.Context, id string) (*economy.Redemption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.st.redemptions[id]
	if !ok {
		return nil, shared.ErrRedemptionNotFound
	}
	return r.Clone(), nil
}

func (s *Store) CompleteRedemption(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.st.redemptions[id]
	if !ok {
		return false, shared.ErrRedemptionNotFound
	}
	return r.Fulfill(at), nil
}

func (s *Store) ListRedemptions(ctx context.Context, filter economy.RedemptionFilter) ([]*economy.Redemption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*economy.Redemption
	for _, r := range s.st.redemptions {
		if filter.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RedeemedAt.Equal(out[j].RedeemedAt) {
			return out[i].RedeemedAt.After(out[j].RedeemedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
