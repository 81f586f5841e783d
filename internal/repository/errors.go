package repository

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/resilience"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound запись не найдена
var ErrNotFound = domain.ErrNotFound

// StorageError ошибка хранилища. Временные ошибки драйвера повторяются политикой,
// остальные означают недоступность ресурса.
type StorageError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("repository: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// FaultKind реализует resilience.Classified.
func (e *StorageError) FaultKind() resilience.Kind {
	if e.Transient {
		return resilience.KindTransient
	}
	return resilience.KindResourceUnavailable
}

// wrapErr переводит ошибку драйвера в ErrNotFound или StorageError.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return &StorageError{Op: op, Transient: isTransientDBError(err), Err: err}
}

// isTransientDBError распознает обрыв соединения, таймауты и конфликты сериализации Postgres.
func isTransientDBError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection_exception
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01": // serialization_failure, deadlock_detected
			return true
		case pgErr.Code == "57P01", pgErr.Code == "53300": // admin_shutdown, too_many_connections
			return true
		}
		return false
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	return resilience.IsTransient(err)
}
