package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/internal/domain/social"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTIONS
// ══════════════════════════════════════════════════════════════════════════════

const connectionColumns = `user_a, user_b, status, action_user_id, created_at, updated_at`

func scanConnection(row pgx.Row) (*social.Connection, error) {
	var (
		c      social.Connection
		status string
	)
	if err := row.Scan(&c.UserA, &c.UserB, &status, &c.ActionUserID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = social.ConnectionStatus(status)
	return &c, nil
}

// InsertConnection relies on the (user_a, user_b) primary key: one row per pair.
func (s *Store) InsertConnection(ctx context.Context, conn *social.Connection) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO connections (`+connectionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, conn.UserA, conn.UserB, string(conn.Status), conn.ActionUserID, conn.CreatedAt, conn.UpdatedAt)
	if IsForeignKeyViolation(err) {
		return shared.ErrAccountNotFound
	}
	return translate("InsertConnection", err, nil, shared.ErrConnectionExists)
}

func (s *Store) GetConnection(ctx context.Context, pair social.Pair) (*social.Connection, error) {
	c, err := scanConnection(s.q.QueryRow(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE user_a = $1 AND user_b = $2`, pair.UserA, pair.UserB))
	if err != nil {
		return nil, translate("GetConnection", err, shared.ErrConnectionNotFound, nil)
	}
	return c, nil
}

// SwapConnection writes next only if the row still matches prev.
func (s *Store) SwapConnection(ctx context.Context, prev, next *social.Connection) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE connections
		SET status = $3, action_user_id = $4, updated_at = $5
		WHERE user_a = $1 AND user_b = $2 AND status = $6 AND action_user_id = $7
	`, prev.UserA, prev.UserB,
		string(next.Status), next.ActionUserID, next.UpdatedAt,
		string(prev.Status), prev.ActionUserID)
	if err != nil {
		return translate("SwapConnection", err, nil, nil)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConnectionChanged
	}
	return nil
}

func (s *Store) DeleteConnection(ctx context.Context, pair social.Pair) (bool, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM connections WHERE user_a = $1 AND user_b = $2`, pair.UserA, pair.UserB)
	if err != nil {
		return false, translate("DeleteConnection", err, nil, nil)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteConnectionIf deletes the row only while it still matches prev.
func (s *Store) DeleteConnectionIf(ctx context.Context, prev *social.Connection) error {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM connections
		WHERE user_a = $1 AND user_b = $2 AND status = $3 AND action_user_id = $4
	`, prev.UserA, prev.UserB, string(prev.Status), prev.ActionUserID)
	if err != nil {
		return translate("DeleteConnectionIf", err, nil, nil)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConnectionChanged
	}
	return nil
}

func (s *Store) ListConnections(ctx context.Context, accountID string) ([]*social.Connection, error) {
	return s.queryConnections(ctx, "ListConnections",
		`SELECT `+connectionColumns+` FROM connections WHERE user_a = $1 OR user_b = $1 ORDER BY user_a, user_b`, accountID)
}

func (s *Store) ListPendingConnections(ctx context.Context) ([]*social.Connection, error) {
	return s.queryConnections(ctx, "ListPendingConnections",
		`SELECT `+connectionColumns+` FROM connections WHERE status = 'pending' ORDER BY user_a, user_b`)
}

func (s *Store) queryConnections(ctx context.Context, op, sql string, args ...any) ([]*social.Connection, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, translate(op, err, nil, nil)
	}
	defer rows.Close()

	var out []*social.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		out = append(out, c)
	}
	return out, translate(op, rows.Err(), nil, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUPS & MEMBERSHIPS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) PutGroup(ctx context.Context, group *social.Group) error {
	if err := group.Validate(); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO study_groups (id, name, description, icon)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			icon = EXCLUDED.icon
	`, group.ID, group.Name, group.Description, group.Icon)
	return translate("PutGroup", err, nil, nil)
}

func (s *Store) GetGroup(ctx context.Context, groupID string) (*social.Group, error) {
	var g social.Group
	err := s.q.QueryRow(ctx, `SELECT id, name, description, icon FROM study_groups WHERE id = $1`, groupID).
		Scan(&g.ID, &g.Name, &g.Description, &g.Icon)
	if err != nil {
		return nil, translate("GetGroup", err, shared.ErrGroupNotFound, nil)
	}
	return &g, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]*social.Group, error) {
	rows, err := s.q.Query(ctx, `SELECT id, name, description, icon FROM study_groups ORDER BY id`)
	if err != nil {
		return nil, translate("ListGroups", err, nil, nil)
	}
	defer rows.Close()

	var out []*social.Group
	for rows.Next() {
		var g social.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.Icon); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		out = append(out, &g)
	}
	return out, translate("ListGroups", rows.Err(), nil, nil)
}

func (s *Store) InsertMembershipIfAbsent(ctx context.Context, m social.Membership) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		INSERT INTO group_memberships (group_id, user_id, status, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`, m.GroupID, m.UserID, string(m.Status), m.UpdatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return false, shared.ErrGroupNotFound
		}
		return false, translate("InsertMembershipIfAbsent", err, nil, nil)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetMembership(ctx context.Context, groupID, userID string) (*social.Membership, error) {
	var (
		m      social.Membership
		status string
	)
	err := s.q.QueryRow(ctx, `
		SELECT group_id, user_id, status, updated_at
		FROM group_memberships WHERE group_id = $1 AND user_id = $2
	`, groupID, userID).Scan(&m.GroupID, &m.UserID, &status, &m.UpdatedAt)
	if err != nil {
		return nil, translate("GetMembership", err, shared.ErrMembershipNotFound, nil)
	}
	m.Status = social.MembershipStatus(status)
	return &m, nil
}

// SwapMembershipStatus moves the record from one status to another if it is still in from.
func (s *Store) SwapMembershipStatus(ctx context.Context, groupID, userID string, from, to social.MembershipStatus, at time.Time) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE group_memberships SET status = $4, updated_at = $5
		WHERE group_id = $1 AND user_id = $2 AND status = $3
	`, groupID, userID, string(from), string(to), at.UTC())
	if err != nil {
		return false, translate("SwapMembershipStatus", err, nil, nil)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UpsertMembership(ctx context.Context, m social.Membership) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO group_memberships (group_id, user_id, status, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, user_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, m.GroupID, m.UserID, string(m.Status), m.UpdatedAt)
	if IsForeignKeyViolation(err) {
		return shared.ErrGroupNotFound
	}
	return translate("UpsertMembership", err, nil, nil)
}

func (s *Store) DeleteMembership(ctx context.Context, groupID, userID string) (bool, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM group_memberships WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return false, translate("DeleteMembership", err, nil, nil)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListMembers(ctx context.Context, groupID string) ([]social.Membership, error) {
	rows, err := s.q.Query(ctx, `
		SELECT group_id, user_id, status, updated_at
		FROM group_memberships WHERE group_id = $1
		ORDER BY user_id
	`, groupID)
	if err != nil {
		return nil, translate("ListMembers", err, nil, nil)
	}
	defer rows.Close()

	var out []social.Membership
	for rows.Next() {
		var (
			m      social.Membership
			status string
		)
		if err := rows.Scan(&m.GroupID, &m.UserID, &status, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		m.Status = social.MembershipStatus(status)
		out = append(out, m)
	}
	return out, translate("ListMembers", rows.Err(), nil, nil)
}

// DeleteGroup removes memberships and the group in one statement.
func (s *Store) DeleteGroup(ctx context.Context, groupID string) (int, error) {
	var removed, groups int
	err := s.q.QueryRow(ctx, `
		WITH removed AS (
			DELETE FROM group_memberships WHERE group_id = $1 RETURNING 1
		), deleted AS (
			DELETE FROM study_groups WHERE id = $1 RETURNING 1
		)
		SELECT (SELECT count(*) FROM removed), (SELECT count(*) FROM deleted)
	`, groupID).Scan(&removed, &groups)
	if err != nil {
		return 0, translate("DeleteGroup", err, nil, nil)
	}
	if groups == 0 {
		return 0, shared.ErrGroupNotFound
	}
	return removed, nil
}
