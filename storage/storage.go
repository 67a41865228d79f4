// Package storage persists accounts, the product catalog, the append-only
// ledger, and the prep queue on SQLite or PostgreSQL through sqlx. Balances
// are never stored; they are summed from ledger entries on every read.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// timeFormat keeps nanoseconds fixed width so string order follows time
// order in every dialect.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// defaultSQLiteParams tunes SQLite for one serialized writer: WAL for
// readers during writes, a busy timeout so contending writers queue instead
// of failing instantly, and immediate transactions so the write lock is
// taken up front.
const defaultSQLiteParams = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate"

// Store is the durable backend shared by the ledger coordinator, the
// directory, and the catalog.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the configured database, applies the schema, and returns
// a ready Store. SQLite writes are serialized on a single connection;
// Postgres ledger writes run at serializable isolation.
func Open(driver, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("storage dsn is required")
	}

	var db *sqlx.DB
	var err error
	switch driver {
	case DriverSQLite:
		if dsn == ":memory:" {
			dsn = "file::memory:" + defaultSQLiteParams
		} else if !strings.Contains(dsn, "?") {
			dsn += defaultSQLiteParams
		}
		db, err = sqlx.Connect("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite db: %w", err)
		}
		db.SetMaxOpenConns(1)
	case DriverPostgres:
		db, err = sqlx.Connect("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres db: %w", err)
		}
		db.SetMaxOpenConns(10)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// beginWrite opens the transaction ledger writes run in. SQLite relies on
// the immediate txlock plus the single-connection pool; Postgres asks for
// serializable isolation.
func (s *Store) beginWrite(ctx context.Context) (*sqlx.Tx, error) {
	if s.driver == DriverPostgres {
		return s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}
	return s.db.BeginTxx(ctx, nil)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// sumBalance adds up every entry for the account with decimal arithmetic.
// It runs against the live db for reads and inside a transaction when a
// write needs the resulting balance.
func sumBalance(ctx context.Context, q sqlx.ExtContext, accountID string) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	query := q.Rebind(`SELECT amount FROM ledger_entries WHERE account_id = ?`)
	if err := sqlx.SelectContext(ctx, q, &amounts, query, accountID); err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	for _, a := range amounts {
		balance = balance.Add(a)
	}
	return balance, nil
}
