package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) PutActivity(ctx context.Context, a *economy.Activity) error {
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO activities (id, kind, title, xp_reward, badge_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (kind, id) DO UPDATE SET
			title = EXCLUDED.title,
			xp_reward = EXCLUDED.xp_reward,
			badge_id = EXCLUDED.badge_id
	`, a.ID, string(a.Kind), a.Title, a.XPReward, a.BadgeID)
	if IsForeignKeyViolation(err) {
		return shared.ErrBadgeNotFound
	}
	return translate("PutActivity", err, nil, nil)
}

const activityColumns = `id, kind, title, xp_reward, COALESCE(badge_id, '')`

func scanActivity(row pgx.Row) (*economy.Activity, error) {
	var (
		a    economy.Activity
		kind string
	)
	if err := row.Scan(&a.ID, &kind, &a.Title, &a.XPReward, &a.BadgeID); err != nil {
		return nil, err
	}
	a.Kind = economy.ActivityKind(kind)
	return &a, nil
}

func (s *Store) GetActivity(ctx context.Context, kind economy.ActivityKind, id string) (*economy.Activity, error) {
	a, err := scanActivity(s.q.QueryRow(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE kind = $1 AND id = $2`, string(kind), id))
	if err != nil {
		return nil, translate("GetActivity", err, shared.ErrActivityNotFound, nil)
	}
	return a, nil
}

func (s *Store) ListActivities(ctx context.Context, kind economy.ActivityKind) ([]*economy.Activity, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE ($1 = '' OR kind = $1) ORDER BY id, kind`, string(kind))
	if err != nil {
		return nil, translate("ListActivities", err, nil, nil)
	}
	defer rows.Close()

	var out []*economy.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, translate("ListActivities", rows.Err(), nil, nil)
}

func (s *Store) PutReward(ctx context.Context, r *economy.Reward) error {
	if err := r.Validate(); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO rewards (id, name, description, icon, xp_cost)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			icon = EXCLUDED.icon,
			xp_cost = EXCLUDED.xp_cost
	`, r.ID, r.Name, r.Description, r.Icon, r.XPCost)
	return translate("PutReward", err, nil, nil)
}

const rewardColumns = `id, name, description, icon, xp_cost`

func scanReward(row pgx.Row) (*economy.Reward, error) {
	var r economy.Reward
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Icon, &r.XPCost); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetReward(ctx context.Context, id string) (*economy.Reward, error) {
	r, err := scanReward(s.q.QueryRow(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id = $1`, id))
	if err != nil {
		return nil, translate("GetReward", err, shared.ErrRewardNotFound, nil)
	}
	return r, nil
}

// DeleteReward relies on the redemptions foreign key to refuse rewards in use.
func (s *Store) DeleteReward(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM rewards WHERE id = $1`, id)
	if IsForeignKeyViolation(err) {
		return shared.ErrRewardInUse
	}
	if err != nil {
		return translate("DeleteReward", err, nil, nil)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrRewardNotFound
	}
	return nil
}

func (s *Store) ListRewards(ctx context.Context) ([]*economy.Reward, error) {
	rows, err := s.q.Query(ctx, `SELECT `+rewardColumns+` FROM rewards ORDER BY xp_cost, id`)
	if err != nil {
		return nil, translate("ListRewards", err, nil, nil)
	}
	defer rows.Close()

	var out []*economy.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		out = append(out, r)
	}
	return out, translate("ListRewards", rows.Err(), nil, nil)
}

func (s *Store) PutBadge(ctx context.Context, b *economy.Badge) error {
	if err := b.Validate(); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO badges (id, name, description, icon)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			icon = EXCLUDED.icon
	`, b.ID, b.Name, b.Description, b.Icon)
	return translate("PutBadge", err, nil, nil)
}

func (s *Store) GetBadge(ctx context.Context, id string) (*economy.Badge, error) {
	var b economy.Badge
	err := s.q.QueryRow(ctx, `SELECT id, name, description, icon FROM badges WHERE id = $1`, id).
		Scan(&b.ID, &b.Name, &b.Description, &b.Icon)
	if err != nil {
		return nil, translate("GetBadge", err, shared.ErrBadgeNotFound, nil)
	}
	return &b, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETIONS & BADGES
// ══════════════════════════════════════════════════════════════════════════════

// InsertCompletion relies on the primary key: a duplicate is AlreadyCompleted.
func (s *Store) InsertCompletion(ctx context.Context, rec economy.CompletionRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO completions (account_id, activity_id, kind, completed_at)
		VALUES ($1, $2, $3, $4)
	`, rec.AccountID, rec.ActivityID, string(rec.Kind), rec.CompletedAt)
	if IsForeignKeyViolation(err) {
		return shared.ErrAccountNotFound
	}
	return translate("InsertCompletion", err, nil, shared.ErrAlreadyCompleted)
}

func (s *Store) ListCompletions(ctx context.Context, accountID string) ([]economy.CompletionRecord, error) {
	rows, err := s.q.Query(ctx, `
		SELECT account_id, activity_id, kind, completed_at
		FROM completions
		WHERE account_id = $1
		ORDER BY kind, activity_id
	`, accountID)
	if err != nil {
		return nil, translate("ListCompletions", err, nil, nil)
	}
	defer rows.Close()

	var out []economy.CompletionRecord
	for rows.Next() {
		var (
			rec  economy.CompletionRecord
			kind string
		)
		if err := rows.Scan(&rec.AccountID, &rec.ActivityID, &kind, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		rec.Kind = economy.ActivityKind(kind)
		out = append(out, rec)
	}
	return out, translate("ListCompletions", rows.Err(), nil, nil)
}

// AwardBadge inserts the badge unless the account already has it.
func (s *Store) AwardBadge(ctx context.Context, ab economy.AccountBadge) (bool, error) {
	awardedAt := ab.AwardedAt
	if awardedAt.IsZero() {
		awardedAt = s.now().UTC()
	}
	tag, err := s.q.Exec(ctx, `
		INSERT INTO account_badges (account_id, badge_id, awarded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, badge_id) DO NOTHING
	`, ab.AccountID, ab.BadgeID, awardedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			if pgConstraint(err) == "account_badges_badge_id_fkey" {
				return false, shared.ErrBadgeNotFound
			}
			return false, shared.ErrAccountNotFound
		}
		return false, translate("AwardBadge", err, nil, nil)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListAccountBadges(ctx context.Context, accountID string) ([]economy.Badge, error) {
	rows, err := s.q.Query(ctx, `
		SELECT b.id, b.name, b.description, b.icon
		FROM account_badges ab
		JOIN badges b ON b.id = ab.badge_id
		WHERE ab.account_id = $1
		ORDER BY b.id
	`, accountID)
	if err != nil {
		return nil, translate("ListAccountBadges", err, nil, nil)
	}
	defer rows.Close()

	var out []economy.Badge
	for rows.Next() {
		var b economy.Badge
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Icon); err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		out = append(out, b)
	}
	return out, translate("ListAccountBadges", rows.Err(), nil, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// REDEMPTIONS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) InsertRedemption(ctx context.Context, r *economy.Redemption) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO redemptions (id, account_id, reward_id, status, redeemed_at, fulfilled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.AccountID, r.RewardID, string(r.Status), r.RedeemedAt, r.FulfilledAt)
	if IsForeignKeyViolation(err) {
		if pgConstraint(err) == "redemptions_reward_id_fkey" {
			return shared.ErrRewardNotFound
		}
		return shared.ErrAccountNotFound
	}
	return translate("InsertRedemption", err, nil, nil)
}

const redemptionColumns = `id, account_id, reward_id, status, redeemed_at, fulfilled_at`

func scanRedemption(row pgx.Row) (*economy.Redemption, error) {
	var (
		r      economy.Redemption
		status string
	)
	if err := row.Scan(&r.ID, &r.AccountID, &r.RewardID, &status, &r.RedeemedAt, &r.FulfilledAt); err != nil {
		return nil, err
	}
	r.Status = economy.RedemptionStatus(status)
	return &r, nil
}

func (s *Store) GetRedemption(ctx context.Context, id string) (*economy.Redemption, error) {
	r, err := scanRedemption(s.q.QueryRow(ctx, `SELECT `+redemptionColumns+` FROM redemptions WHERE id = $1`, id))
	if err != nil {
		return nil, translate("GetRedemption", err, shared.ErrRedemptionNotFound, nil)
	}
	return r, nil
}

// CompleteRedemption moves pending to completed. A completed row is left as is.
func (s *Store) CompleteRedemption(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE redemptions SET status = 'completed', fulfilled_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, at.UTC())
	if err != nil {
		return false, translate("CompleteRedemption", err, nil, nil)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if err := s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM redemptions WHERE id = $1)`, id); err != nil {
		if shared.IsNotFound(err) {
			return false, shared.ErrRedemptionNotFound
		}
		return false, err
	}
	return false, nil
}

func (s *Store) ListRedemptions(ctx context.Context, filter economy.RedemptionFilter) ([]*economy.Redemption, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+redemptionColumns+`
		FROM redemptions
		WHERE ($1 = '' OR account_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY redeemed_at DESC, id
		LIMIT NULLIF($3, 0)
	`, filter.AccountID, string(filter.Status), filter.Limit)
	if err != nil {
		return nil, translate("ListRedemptions", err, nil, nil)
	}
	defer rows.Close()

	var out []*economy.Redemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan redemption: %w", err)
		}
		out = append(out, r)
	}
	return out, translate("ListRedemptions", rows.Err(), nil, nil)
}
