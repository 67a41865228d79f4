package storage

import "context"

// The two schemas differ only in how the ledger sequence is generated:
// SQLite uses the rowid autoincrement, Postgres a bigserial. Amounts are
// stored as exact decimal strings and timestamps as fixed-width UTC text.

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	number TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	notes TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	price TEXT NOT NULL,
	requires_prep BOOLEAN NOT NULL DEFAULT FALSE,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	display_order INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	kind TEXT NOT NULL,
	amount TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	actor_id TEXT NOT NULL,
	actor_role TEXT NOT NULL,
	adjusts_entry_id TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account_id, seq);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_adjusts ON ledger_entries(adjusts_entry_id);

CREATE TABLE IF NOT EXISTS line_items (
	id TEXT PRIMARY KEY,
	entry_id TEXT NOT NULL REFERENCES ledger_entries(id),
	product_id TEXT NOT NULL,
	product_name TEXT NOT NULL,
	unit_price TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	line_total TEXT NOT NULL,
	position INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_line_items_entry ON line_items(entry_id);

CREATE TABLE IF NOT EXISTS prep_items (
	id TEXT PRIMARY KEY,
	entry_id TEXT NOT NULL REFERENCES ledger_entries(id),
	line_item_id TEXT NOT NULL REFERENCES line_items(id),
	account_id TEXT NOT NULL REFERENCES accounts(id),
	account_name TEXT NOT NULL,
	product_name TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	priority INTEGER NOT NULL DEFAULT 2,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TEXT NOT NULL,
	completed_at TEXT,
	completed_by TEXT
);
CREATE INDEX IF NOT EXISTS idx_prep_items_status ON prep_items(status, created_at);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	number TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	notes TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	price TEXT NOT NULL,
	requires_prep BOOLEAN NOT NULL DEFAULT FALSE,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	display_order INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	kind TEXT NOT NULL,
	amount TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	actor_id TEXT NOT NULL,
	actor_role TEXT NOT NULL,
	adjusts_entry_id TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account_id, seq);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_adjusts ON ledger_entries(adjusts_entry_id);

CREATE TABLE IF NOT EXISTS line_items (
	id TEXT PRIMARY KEY,
	entry_id TEXT NOT NULL REFERENCES ledger_entries(id),
	product_id TEXT NOT NULL,
	product_name TEXT NOT NULL,
	unit_price TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	line_total TEXT NOT NULL,
	position INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_line_items_entry ON line_items(entry_id);

CREATE TABLE IF NOT EXISTS prep_items (
	id TEXT PRIMARY KEY,
	entry_id TEXT NOT NULL REFERENCES ledger_entries(id),
	line_item_id TEXT NOT NULL REFERENCES line_items(id),
	account_id TEXT NOT NULL REFERENCES accounts(id),
	account_name TEXT NOT NULL,
	product_name TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	priority INTEGER NOT NULL DEFAULT 2,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TEXT NOT NULL,
	completed_at TEXT,
	completed_by TEXT
);
CREATE INDEX IF NOT EXISTS idx_prep_items_status ON prep_items(status, created_at);
`

func (s *Store) migrate(ctx context.Context) error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
