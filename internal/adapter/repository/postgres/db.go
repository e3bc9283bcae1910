package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq" // PostgreSQL driver
	"github.com/simaogato/dealflow-backend/internal/adapter/repository/sqlstore"
)

// SQLSTATE codes that mean the transaction lost a race and may be retried
const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
// connectionString should be in the format: "host=localhost port=5432 user=postgres password=postgres dbname=dealflow sslmode=disable"
func NewDB(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Migrate creates the schema if it does not exist
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Dialect is the sqlstore dialect for Postgres.
// Every unit of work runs SERIALIZABLE so concurrent recomputes of the same
// deal cannot interleave; the loser gets a serialization failure.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:       "postgres",
		Rebind:     sqlstore.Dollar,
		IsConflict: IsSerializationFailure,
		TxOptions:  &sql.TxOptions{Isolation: sql.LevelSerializable},
	}
}

// NewStore wraps db in a domain.Store
func NewStore(db *DB) *sqlstore.Store {
	return sqlstore.NewStore(db.DB, Dialect())
}

// IsSerializationFailure reports whether err is a Postgres serialization failure or deadlock
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case serializationFailure, deadlockDetected:
		return true
	default:
		return false
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS deals (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	fee NUMERIC(14, 2) NOT NULL CHECK (fee >= 0),
	referral_fee_percent NUMERIC(7, 4) NOT NULL CHECK (referral_fee_percent BETWEEN 0 AND 100),
	house_percent NUMERIC(7, 4) NOT NULL CHECK (house_percent BETWEEN 0 AND 100),
	origination_percent NUMERIC(7, 4) NOT NULL CHECK (origination_percent BETWEEN 0 AND 100),
	site_percent NUMERIC(7, 4) NOT NULL CHECK (site_percent BETWEEN 0 AND 100),
	deal_percent NUMERIC(7, 4) NOT NULL CHECK (deal_percent BETWEEN 0 AND 100),
	number_of_payments INTEGER NOT NULL CHECK (number_of_payments > 0),
	updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS commission_split_templates (
	id UUID PRIMARY KEY,
	deal_id UUID NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
	participant_id UUID NOT NULL,
	participant_name TEXT NOT NULL DEFAULT '',
	origination_percent NUMERIC(7, 4) NOT NULL CHECK (origination_percent BETWEEN 0 AND 100),
	site_percent NUMERIC(7, 4) NOT NULL CHECK (site_percent BETWEEN 0 AND 100),
	deal_percent NUMERIC(7, 4) NOT NULL CHECK (deal_percent BETWEEN 0 AND 100),
	UNIQUE (deal_id, participant_id)
);

CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY,
	deal_id UUID NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
	sequence INTEGER NOT NULL CHECK (sequence > 0),
	amount NUMERIC(14, 2) NOT NULL CHECK (amount >= 0),
	override_mode TEXT NOT NULL CHECK (override_mode IN ('TEMPLATED', 'OVERRIDDEN')),
	overridden_at BIGINT,
	overridden_by TEXT,
	referral_fee NUMERIC(14, 2) NOT NULL,
	gci NUMERIC(14, 2) NOT NULL,
	house_split NUMERIC(14, 2) NOT NULL,
	agci NUMERIC(14, 2) NOT NULL,
	version BIGINT NOT NULL DEFAULT 1,
	UNIQUE (deal_id, sequence)
);

CREATE TABLE IF NOT EXISTS payment_splits (
	id UUID PRIMARY KEY,
	payment_id UUID NOT NULL REFERENCES payments(id) ON DELETE CASCADE,
	participant_id UUID NOT NULL,
	origination_amount NUMERIC(14, 2) NOT NULL,
	site_amount NUMERIC(14, 2) NOT NULL,
	deal_amount NUMERIC(14, 2) NOT NULL,
	total NUMERIC(14, 2) NOT NULL,
	UNIQUE (payment_id, participant_id)
);

CREATE INDEX IF NOT EXISTS idx_commission_split_templates_deal_id ON commission_split_templates(deal_id);
CREATE INDEX IF NOT EXISTS idx_payments_deal_id ON payments(deal_id);
CREATE INDEX IF NOT EXISTS idx_payment_splits_payment_id ON payment_splits(payment_id);
`
