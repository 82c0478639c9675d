package postgres

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alem-hub/xp-economy/internal/domain/shared"
)

// PostgreSQL SQLSTATE codes the store reacts to.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeNotNullViolation     = "23502"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeAdminShutdown        = "57P01"
	codeCannotConnectNow     = "57P03"
)

// IsUniqueViolation checks if the error is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

// IsForeignKeyViolation checks if the error is a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	return pgCode(err) == codeForeignKeyViolation
}

// IsCheckViolation checks if the error is a CHECK constraint violation.
func IsCheckViolation(err error) bool {
	return pgCode(err) == codeCheckViolation
}

// IsNoRows checks if the error is a "no rows" error.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func pgConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// translate maps a driver error onto the domain taxonomy so that no raw
// storage error leaks past the store when a domain meaning is known.
// notFound is returned for pgx.ErrNoRows; conflict for unique violations.
func translate(op string, err error, notFound, conflict error) error {
	if err == nil {
		return nil
	}
	if IsNoRows(err) && notFound != nil {
		return notFound
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	switch code := pgCode(err); {
	case code == codeUniqueViolation:
		if conflict != nil {
			return conflict
		}
		return shared.WrapError("store", op, shared.ErrAlreadyExists, "duplicate key", err)
	case code == codeForeignKeyViolation:
		return shared.WrapError("store", op, shared.ErrNotFound, "referenced entity not found", err)
	case code == codeCheckViolation:
		if strings.HasPrefix(pgConstraint(err), "accounts_xp") {
			return shared.ErrInsufficientXP
		}
		return shared.WrapError("store", op, shared.ErrValidation, "constraint violated", err)
	case code == codeNotNullViolation:
		return shared.WrapError("store", op, shared.ErrValidation, "required value missing", err)
	case code == codeSerializationFailure, code == codeDeadlockDetected,
		code == codeAdminShutdown, code == codeCannotConnectNow,
		strings.HasPrefix(code, "08"):
		return shared.WrapError("store", op, shared.ErrServiceUnavailable, "transient database failure", err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return shared.WrapError("store", op, shared.ErrTimeout, "database timeout", err)
	}
	if isTransient(err) {
		return shared.WrapError("store", op, shared.ErrServiceUnavailable, "database unavailable", err)
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, ErrConnectionClosed) || errors.Is(err, ErrTransactionFailed) {
		return true
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
