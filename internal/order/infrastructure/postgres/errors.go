package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmehra2102/order-ledger/pkg/apperror"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeCheckViolation       = "23514"
	codeForeignKeyViolation  = "23503"
)

// mapError turns driver errors with a caller-visible meaning into the error
// taxonomy. Everything else passes through and surfaces as internal.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return apperror.Conflict(err, "order is being modified concurrently, retry the request")
	case codeCheckViolation:
		if pgErr.ConstraintName == "products_stock_non_negative" {
			return apperror.InsufficientStock("insufficient stock")
		}
	case codeForeignKeyViolation:
		return apperror.Validation("referenced record does not exist")
	}
	return err
}
