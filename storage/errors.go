package storage

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	sqlite "modernc.org/sqlite"

	"github.com/JimRearick/camp-snackbar-pos-sub001/domain"
)

// SQLite primary result codes that signal lock contention.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// Postgres SQLSTATE codes raised when a serializable transaction must be
// retried.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// markContention wraps transient lock errors with domain.ErrStoreContention
// so the coordinator can retry them. Other errors pass through unchanged.
func markContention(err error) error {
	if err == nil {
		return nil
	}
	if isContention(err) {
		return fmt.Errorf("%w: %v", domain.ErrStoreContention, err)
	}
	return err
}

func isContention(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return true
		}
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch pe.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return true
		}
	}
	return false
}
