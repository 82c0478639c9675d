package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/xp-economy/internal/domain/shared"
)

func pgErr(code, constraint string) error {
	return &pgconn.PgError{Code: code, ConstraintName: constraint, Message: "boom"}
}

func TestTranslate(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, translate("Op", nil, shared.ErrAccountNotFound, nil))
	})

	t.Run("no rows maps to the given not found", func(t *testing.T) {
		err := translate("GetAccount", pgx.ErrNoRows, shared.ErrAccountNotFound, nil)
		assert.ErrorIs(t, err, shared.ErrAccountNotFound)
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("domain errors pass through", func(t *testing.T) {
		wrapped := fmt.Errorf("tx error: %w", shared.ErrInsufficientXP)
		err := translate("WithinTx", wrapped, nil, nil)
		assert.ErrorIs(t, err, shared.ErrInsufficientXP)
		assert.True(t, shared.IsInsufficientFunds(err))
	})

	t.Run("unique violation uses the conflict error", func(t *testing.T) {
		err := translate("InsertCompletion", pgErr(codeUniqueViolation, "completions_pkey"), nil, shared.ErrAlreadyCompleted)
		assert.ErrorIs(t, err, shared.ErrAlreadyCompleted)
		assert.True(t, shared.IsAlreadyCompleted(err))
	})

	t.Run("unique violation without conflict error is AlreadyExists", func(t *testing.T) {
		err := translate("Insert", pgErr(codeUniqueViolation, "x_pkey"), nil, nil)
		assert.True(t, shared.IsAlreadyExists(err))
	})

	t.Run("foreign key violation is NotFound", func(t *testing.T) {
		err := translate("Insert", pgErr(codeForeignKeyViolation, "x_fkey"), nil, nil)
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("balance check violation is InsufficientFunds", func(t *testing.T) {
		err := translate("Debit", pgErr(codeCheckViolation, "accounts_xp_non_negative"), nil, nil)
		assert.True(t, shared.IsInsufficientFunds(err))
	})

	t.Run("other check violation is Validation", func(t *testing.T) {
		err := translate("Insert", pgErr(codeCheckViolation, "connections_canonical"), nil, nil)
		assert.True(t, shared.IsValidation(err))
	})

	t.Run("serialization failure is retryable", func(t *testing.T) {
		for _, code := range []string{codeSerializationFailure, codeDeadlockDetected, codeAdminShutdown, "08006"} {
			err := translate("Debit", pgErr(code, ""), nil, nil)
			assert.True(t, shared.IsRetryable(err), code)
		}
	})

	t.Run("deadline is a timeout", func(t *testing.T) {
		err := translate("Ping", context.DeadlineExceeded, nil, nil)
		assert.ErrorIs(t, err, shared.ErrTimeout)
	})

	t.Run("closed pool is retryable", func(t *testing.T) {
		err := translate("Ping", ErrConnectionClosed, nil, nil)
		assert.True(t, shared.IsRetryable(err))
		assert.ErrorIs(t, err, ErrConnectionClosed)
	})

	t.Run("unknown errors are returned unchanged", func(t *testing.T) {
		boom := errors.New("boom")
		assert.Same(t, boom, translate("Op", boom, nil, nil))
	})
}

func TestErrorPredicates(t *testing.T) {
	wrapped := fmt.Errorf("exec: %w", pgErr(codeForeignKeyViolation, "redemptions_reward_id_fkey"))

	assert.True(t, IsForeignKeyViolation(wrapped))
	assert.False(t, IsUniqueViolation(wrapped))
	assert.False(t, IsCheckViolation(wrapped))
	assert.Equal(t, "redemptions_reward_id_fkey", pgConstraint(wrapped))
	assert.True(t, IsNoRows(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
	assert.Empty(t, pgCode(errors.New("plain")))
}

func TestConfigDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "secret"

	assert.Equal(t,
		"host=localhost port=5432 dbname=economy user=postgres password=secret sslmode=disable connect_timeout=10",
		cfg.DSN())

	cfg.URL = "postgres://u:p@db:5432/economy"
	assert.Equal(t, "postgres://u:p@db:5432/economy", cfg.DSN())
}

func TestConfigPoolConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConns = 7
	cfg.MaxConnIdleTime = 5 * time.Minute

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, 5*time.Minute, pc.MaxConnIdleTime)
}

func TestGetMigrations(t *testing.T) {
	migrations := GetMigrations()
	require.Len(t, migrations, 4)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Name)
		assert.NotEmpty(t, m.UpSQL)
	}
	assert.Contains(t, migrations[0].UpSQL, "accounts_xp_non_negative")
	assert.Contains(t, migrations[3].UpSQL, "ON DELETE CASCADE")
	assert.Contains(t, migrations[3].UpSQL, `CHECK (user_a COLLATE "C" < user_b COLLATE "C")`)
}
