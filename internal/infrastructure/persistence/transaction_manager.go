package persistence

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	apperrors "github.com/careflow/approvals/pkg/errors"
)

// MySQL error numbers treated as transient.
const (
	errLockDeadlock    = 1213
	errLockWaitTimeout = 1205
)

// TransactionManager runs functions inside database transactions.
type TransactionManager struct {
	db *sql.DB
}

// NewTransactionManager creates a new TransactionManager
func NewTransactionManager(db *sql.DB) *TransactionManager {
	return &TransactionManager{db: db}
}

// WithTransaction executes a function within a database transaction.
// The transaction is rolled back if the function returns an error or panics and
// committed otherwise. Transient failures come back as STORE_UNAVAILABLE so the
// orchestrator can retry them.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, "failed to begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w (rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(err, "failed to commit transaction")
	}
	return nil
}

// classify wraps a driver error, marking transient ones as STORE_UNAVAILABLE.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, err, "%s", msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// isTransient reports deadlocks, lock wait timeouts and dropped connections.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == errLockDeadlock || myErr.Number == errLockWaitTimeout
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "deadlock") ||
		strings.Contains(errMsg, "lock wait timeout") ||
		strings.Contains(errMsg, "connection refused")
}
