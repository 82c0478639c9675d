package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// economyd and the worker both migrate on startup. Each step runs in its own
// transaction under one advisory lock and re-checks the version it applies.
// ══════════════════════════════════════════════════════════════════════════════

// migrationLockKey identifies the advisory lock shared by every migrator.
const migrationLockKey int64 = 0x78705f6d6967 // "xp_mig"

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`

// Migration is one embedded schema step.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// Migrator applies the embedded migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

// Migrate applies every pending migration in version order.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.locked(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, createMigrationsTable)
		return err
	}); err != nil {
		return fmt.Errorf("%w: migrations table: %w", ErrMigrationFailed, err)
	}

	for _, mig := range m.migrations {
		err := m.locked(ctx, func(tx pgx.Tx) error {
			var applied bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, mig.Version,
			).Scan(&applied); err != nil {
				return err
			}
			if applied {
				return nil
			}
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d (%s): %w", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
	}
	return nil
}

// Applied returns the applied versions in order.
func (m *Migrator) Applied(ctx context.Context) ([]int, error) {
	rows, err := m.conn.Pool().Query(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

func (m *Migrator) locked(ctx context.Context, fn func(pgx.Tx) error) error {
	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return err
		}
		return fn(tx)
	})
}

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_accounts_and_ledger", UpSQL: migration001Up},
		{Version: 2, Name: "create_catalog_and_completions", UpSQL: migration002Up},
		{Version: 3, Name: "create_redemptions", UpSQL: migration003Up},
		{Version: 4, Name: "create_social", UpSQL: migration004Up},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: ACCOUNTS & LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    display_name VARCHAR(100) NOT NULL,
    role VARCHAR(20) NOT NULL DEFAULT 'student',
    xp BIGINT NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    last_login_date DATE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT accounts_xp_non_negative CHECK (xp >= 0),
    CONSTRAINT accounts_streak_non_negative CHECK (current_streak >= 0),
    CONSTRAINT accounts_role_valid CHECK (role IN ('student', 'admin'))
);

CREATE INDEX IF NOT EXISTS idx_accounts_xp ON accounts(xp DESC, id);

CREATE TABLE IF NOT EXISTS ledger_entries (
    id BIGSERIAL PRIMARY KEY,
    account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    delta BIGINT NOT NULL,
    balance BIGINT NOT NULL,
    reason VARCHAR(20) NOT NULL,
    reference_id TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT ledger_delta_non_zero CHECK (delta <> 0)
);

CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries(account_id, id DESC);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CATALOG & COMPLETIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS badges (
    id TEXT PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS activities (
    id TEXT NOT NULL,
    kind VARCHAR(10) NOT NULL,
    title VARCHAR(200) NOT NULL DEFAULT '',
    xp_reward BIGINT NOT NULL,
    badge_id TEXT REFERENCES badges(id),

    PRIMARY KEY (kind, id),
    CONSTRAINT activities_kind_valid CHECK (kind IN ('course', 'event')),
    CONSTRAINT activities_reward_positive CHECK (xp_reward > 0)
);

CREATE TABLE IF NOT EXISTS rewards (
    id TEXT PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon TEXT NOT NULL DEFAULT '',
    xp_cost BIGINT NOT NULL,

    CONSTRAINT rewards_cost_positive CHECK (xp_cost > 0)
);

-- The primary key is the at-most-once guarantee for XP awards.
CREATE TABLE IF NOT EXISTS completions (
    account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    activity_id TEXT NOT NULL,
    kind VARCHAR(10) NOT NULL,
    completed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (account_id, kind, activity_id),
    CONSTRAINT completions_kind_valid CHECK (kind IN ('course', 'event'))
);

CREATE TABLE IF NOT EXISTS account_badges (
    account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    badge_id TEXT NOT NULL REFERENCES badges(id),
    awarded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (account_id, badge_id)
);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: REDEMPTIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS redemptions (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    reward_id TEXT NOT NULL REFERENCES rewards(id),
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    redeemed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    fulfilled_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT redemptions_status_valid CHECK (status IN ('pending', 'completed')),
    CONSTRAINT redemptions_fulfilled_consistent CHECK ((status = 'completed') = (fulfilled_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_redemptions_account ON redemptions(account_id, redeemed_at DESC);
CREATE INDEX IF NOT EXISTS idx_redemptions_pending ON redemptions(redeemed_at DESC) WHERE status = 'pending';
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: CONNECTIONS & GROUPS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- One row per unordered pair, stored in canonical byte order.
CREATE TABLE IF NOT EXISTS connections (
    user_a TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    user_b TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    action_user_id TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_a, user_b),
    CONSTRAINT connections_canonical CHECK (user_a COLLATE "C" < user_b COLLATE "C"),
    CONSTRAINT connections_status_valid CHECK (status IN ('pending', 'accepted')),
    CONSTRAINT connections_action_member CHECK (action_user_id IN (user_a, user_b))
);

CREATE INDEX IF NOT EXISTS idx_connections_user_b ON connections(user_b);
CREATE INDEX IF NOT EXISTS idx_connections_pending ON connections(updated_at) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS study_groups (
    id TEXT PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS group_memberships (
    group_id TEXT NOT NULL REFERENCES study_groups(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    status VARCHAR(20) NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (group_id, user_id),
    CONSTRAINT memberships_status_valid CHECK (status IN ('pending_request', 'member'))
);
`
