package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a uniqueness constraint rejected the write.
	ErrConflict = errors.New("record already exists")
	// ErrStaleStatus indicates a status write lost a compare-and-set race.
	ErrStaleStatus = errors.New("idea status changed concurrently")
	// ErrBusy is returned by stores that detect contention themselves.
	ErrBusy = errors.New("store busy")
)

// Postgres SQLSTATE codes treated as transient contention.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
)

// IsTransient reports whether err is store contention that may succeed on
// retry: SQLite BUSY/LOCKED, Postgres serialization/deadlock/lock timeouts,
// or ErrBusy.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBusy) {
		return true
	}
	if isSQLiteBusyError(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		}
	}
	return false
}

func isSQLiteBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	// extended codes carry the primary code in the low byte
	code := sqliteErr.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

func isSQLiteConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
