// Package sqlite provides a SQLite-backed domain.Store for local runs and tests.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/simaogato/dealflow-backend/internal/adapter/repository/sqlstore"
)

// Primary result codes; extended codes keep these in the low byte
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// Open opens (creating if needed) the database at dbPath and runs migrations.
//
// Transactions begin IMMEDIATE so writers queue on the database lock
// instead of failing at commit; a writer that waits past the busy timeout
// surfaces as a recompute conflict.
func Open(dbPath string) (*sqlstore.Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite", "file:"+dbPath+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return sqlstore.NewStore(db, Dialect()), nil
}

// Dialect is the sqlstore dialect for SQLite
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:       "sqlite",
		Rebind:     sqlstore.Question,
		IsConflict: IsBusy,
	}
}

// IsBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED
func IsBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff {
	case sqliteBusy, sqliteLocked:
		return true
	default:
		return false
	}
}

// schema is applied on every open; tables are created parents first
const schema = `
CREATE TABLE IF NOT EXISTS deals (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    fee TEXT NOT NULL,
    referral_fee_percent TEXT NOT NULL,
    house_percent TEXT NOT NULL,
    origination_percent TEXT NOT NULL,
    site_percent TEXT NOT NULL,
    deal_percent TEXT NOT NULL,
    number_of_payments INTEGER NOT NULL CHECK (number_of_payments > 0),
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS commission_split_templates (
    id TEXT PRIMARY KEY,
    deal_id TEXT NOT NULL,
    participant_id TEXT NOT NULL,
    participant_name TEXT NOT NULL DEFAULT '',
    origination_percent TEXT NOT NULL,
    site_percent TEXT NOT NULL,
    deal_percent TEXT NOT NULL,
    UNIQUE (deal_id, participant_id),
    FOREIGN KEY (deal_id) REFERENCES deals(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS payments (
    id TEXT PRIMARY KEY,
    deal_id TEXT NOT NULL,
    sequence INTEGER NOT NULL CHECK (sequence > 0),
    amount TEXT NOT NULL,
    override_mode TEXT NOT NULL CHECK (override_mode IN ('TEMPLATED', 'OVERRIDDEN')),
    overridden_at INTEGER,
    overridden_by TEXT,
    referral_fee TEXT NOT NULL,
    gci TEXT NOT NULL,
    house_split TEXT NOT NULL,
    agci TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    UNIQUE (deal_id, sequence),
    FOREIGN KEY (deal_id) REFERENCES deals(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS payment_splits (
    id TEXT PRIMARY KEY,
    payment_id TEXT NOT NULL,
    participant_id TEXT NOT NULL,
    origination_amount TEXT NOT NULL,
    site_amount TEXT NOT NULL,
    deal_amount TEXT NOT NULL,
    total TEXT NOT NULL,
    UNIQUE (payment_id, participant_id),
    FOREIGN KEY (payment_id) REFERENCES payments(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_commission_split_templates_deal_id ON commission_split_templates(deal_id);
CREATE INDEX IF NOT EXISTS idx_payments_deal_id ON payments(deal_id);
CREATE INDEX IF NOT EXISTS idx_payment_splits_payment_id ON payment_splits(payment_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
