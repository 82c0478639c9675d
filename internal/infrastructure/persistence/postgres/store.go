package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/xp-economy/internal/domain/account"
	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
)

// Store is the PostgreSQL economy.Store.
// Outside a transaction it runs on the pool; inside WithinTx it runs on the tx.
type Store struct {
	conn *Connection
	q    Querier
	inTx bool
	now  func() time.Time
}

var _ economy.Store = (*Store)(nil)

// NewStore creates a store on top of an open connection.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn, q: conn.Pool(), now: time.Now}
}

// WithinTx runs fn in one database transaction. Nested calls join the outer one.
func (s *Store) WithinTx(ctx context.Context, fn func(tx economy.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&Store{conn: s.conn, q: tx, inTx: true, now: s.now})
	})
	return translate("WithinTx", err, nil, nil)
}

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error {
	return translate("Ping", s.conn.Ping(ctx), nil, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNTS
// ══════════════════════════════════════════════════════════════════════════════

const accountColumns = `id, display_name, role, xp, current_streak, last_login_date, created_at`

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		a    account.Account
		role string
	)
	if err := row.Scan(&a.ID, &a.DisplayName, &role, &a.XP, &a.CurrentStreak, &a.LastLoginDate, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Role = account.Role(role)
	if a.LastLoginDate != nil {
		d := time.Date(a.LastLoginDate.Year(), a.LastLoginDate.Month(), a.LastLoginDate.Day(), 0, 0, 0, 0, time.UTC)
		a.LastLoginDate = &d
	}
	return &a, nil
}

func (s *Store) CreateAccount(ctx context.Context, acc *account.Account) error {
	if err := acc.Validate(); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO accounts (id, display_name, role, xp, current_streak, last_login_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, acc.ID, acc.DisplayName, string(acc.Role), acc.XP, acc.CurrentStreak, acc.LastLoginDate, acc.CreatedAt)
	return translate("CreateAccount", err, nil, shared.ErrAccountAlreadyExists)
}

func (s *Store) GetAccount(ctx context.Context, id string) (*account.Account, error) {
	acc, err := scanAccount(s.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, translate("GetAccount", err, shared.ErrAccountNotFound, nil)
	}
	return acc, nil
}

func (s *Store) UpdateProfile(ctx context.Context, id, displayName string, role account.Role) (*account.Account, error) {
	if !role.IsValid() {
		return nil, shared.NewDomainError("account", "Validate", shared.ErrInvalidInput, "unknown role")
	}
	acc, err := scanAccount(s.q.QueryRow(ctx, `
		UPDATE accounts SET display_name = $2, role = $3
		WHERE id = $1
		RETURNING `+accountColumns, id, displayName, string(role)))
	if err != nil {
		return nil, translate("UpdateProfile", err, shared.ErrAccountNotFound, nil)
	}
	return acc, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	return s.queryAccounts(ctx, "ListAccounts", `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
}

func (s *Store) TopAccounts(ctx context.Context, limit int) ([]*account.Account, error) {
	return s.queryAccounts(ctx, "TopAccounts",
		`SELECT `+accountColumns+` FROM accounts ORDER BY xp DESC, id LIMIT NULLIF($1, 0)`, limit)
}

func (s *Store) queryAccounts(ctx context.Context, op, sql string, args ...any) ([]*account.Account, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, translate(op, err, nil, nil)
	}
	defer rows.Close()

	var out []*account.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, acc)
	}
	return out, translate(op, rows.Err(), nil, nil)
}

// RecordLogin writes the streak only if last_login_date still equals expected.
func (s *Store) RecordLogin(ctx context.Context, id string, expected *time.Time, streak int, lastLogin time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE accounts
		SET current_streak = $3, last_login_date = $4
		WHERE id = $1 AND last_login_date IS NOT DISTINCT FROM $2::date
	`, id, expected, streak, lastLogin)
	if err != nil {
		return translate("RecordLogin", err, nil, nil)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if err := s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id); err != nil {
		if shared.IsNotFound(err) {
			return shared.ErrAccountNotFound
		}
		return err
	}
	return shared.ErrStreakAlreadyCounted
}

// exists returns shared.ErrNotFound when the query yields false.
func (s *Store) exists(ctx context.Context, sql string, args ...any) error {
	var ok bool
	if err := s.q.QueryRow(ctx, sql, args...).Scan(&ok); err != nil {
		return translate("Exists", err, nil, nil)
	}
	if !ok {
		return shared.ErrNotFound
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// The balance change and its ledger row are one statement, so they commit
// together even outside WithinTx.
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) Credit(ctx context.Context, accountID string, amount int64, cause economy.Cause) (int64, error) {
	if err := economy.ValidateAmount(amount); err != nil {
		return 0, err
	}
	var balance int64
	err := s.q.QueryRow(ctx, `
		WITH upd AS (
			UPDATE accounts SET xp = xp + $2 WHERE id = $1 RETURNING xp
		)
		INSERT INTO ledger_entries (account_id, delta, balance, reason, reference_id, created_at)
		SELECT $1, $2, xp, $3, $4, $5 FROM upd
		RETURNING balance
	`, accountID, amount, string(cause.Reason), cause.ReferenceID, s.now().UTC()).Scan(&balance)
	if err != nil {
		return 0, translate("Credit", err, shared.ErrAccountNotFound, nil)
	}
	return balance, nil
}

// Debit subtracts amount only while the balance covers it. The conditional
// UPDATE takes the row lock, so concurrent debits serialize on the account.
func (s *Store) Debit(ctx context.Context, accountID string, amount int64, cause economy.Cause) (int64, error) {
	if err := economy.ValidateAmount(amount); err != nil {
		return 0, err
	}
	var balance int64
	err := s.q.QueryRow(ctx, `
		WITH upd AS (
			UPDATE accounts SET xp = xp - $2 WHERE id = $1 AND xp >= $2 RETURNING xp
		)
		INSERT INTO ledger_entries (account_id, delta, balance, reason, reference_id, created_at)
		SELECT $1, -$2::bigint, xp, $3, $4, $5 FROM upd
		RETURNING balance
	`, accountID, amount, string(cause.Reason), cause.ReferenceID, s.now().UTC()).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !IsNoRows(err) {
		return 0, translate("Debit", err, nil, nil)
	}

	// Nothing updated: either the account is missing or the balance is short.
	var current int64
	err = s.q.QueryRow(ctx, `SELECT xp FROM accounts WHERE id = $1`, accountID).Scan(&current)
	if err != nil {
		return 0, translate("Debit", err, shared.ErrAccountNotFound, nil)
	}
	return current, shared.ErrInsufficientXP
}

func (s *Store) ListLedger(ctx context.Context, accountID string, limit int) ([]economy.LedgerEntry, error) {
	rows, err := s.q.Query(ctx, `
		SELECT account_id, delta, balance, reason, reference_id, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT NULLIF($2, 0)
	`, accountID, limit)
	if err != nil {
		return nil, translate("ListLedger", err, nil, nil)
	}
	defer rows.Close()

	var out []economy.LedgerEntry
	for rows.Next() {
		var (
			e      economy.LedgerEntry
			reason string
		)
		if err := rows.Scan(&e.AccountID, &e.Delta, &e.Balance, &reason, &e.ReferenceID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Reason = economy.Reason(reason)
		out = append(out, e)
	}
	return out, translate("ListLedger", rows.Err(), nil, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYTICS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) Counts(ctx context.Context) (economy.Counts, error) {
	var c economy.Counts
	err := s.q.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM accounts),
			(SELECT count(*) FROM accounts WHERE role = 'admin'),
			(SELECT count(*) FROM activities WHERE kind = 'course'),
			(SELECT count(*) FROM activities WHERE kind = 'event'),
			(SELECT count(*) FROM redemptions)
	`).Scan(&c.Accounts, &c.Admins, &c.Courses, &c.Events, &c.Redemptions)
	if err != nil {
		return economy.Counts{}, translate("Counts", err, nil, nil)
	}
	return c, nil
}
