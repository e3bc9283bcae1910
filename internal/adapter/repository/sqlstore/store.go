// Package sqlstore implements the domain repositories on database/sql.
// Queries are written with ? placeholders and rebound per dialect, so the
// Postgres and SQLite stores share one implementation.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/simaogato/dealflow-backend/internal/domain"
)

// Dialect captures what differs between the supported databases
type Dialect struct {
	Name string

	// Rebind rewrites ? placeholders into the driver's syntax
	Rebind func(query string) string

	// IsConflict reports whether a driver error means a concurrent write aborted the transaction
	IsConflict func(err error) bool

	// TxOptions are passed to BeginTx for every unit of work
	TxOptions *sql.TxOptions
}

// Question leaves ? placeholders untouched
func Question(query string) string { return query }

// Dollar rewrites ? placeholders into $1, $2, ...
func Dollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store implements domain.Store on a *sql.DB
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ domain.Store = (*Store)(nil)

// NewStore creates a new Store
func NewStore(db *sql.DB, dialect Dialect) *Store {
	if dialect.Rebind == nil {
		dialect.Rebind = Question
	}
	return &Store{db: db, dialect: dialect}
}

// Dialect returns the store's dialect name
func (s *Store) Dialect() string {
	return s.dialect.Name
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// WithinTx runs fn in one transaction, committing only if fn returns nil
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return s.mapError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	c := &conn{tx: tx, rebind: s.dialect.Rebind}
	repos := domain.Repositories{
		Deals:     &dealRepository{c: c},
		Payments:  &paymentRepository{c: c},
		Templates: &templateRepository{c: c},
		Splits:    &splitRepository{c: c},
	}

	if err := fn(ctx, repos); err != nil {
		return s.mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return s.mapError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// mapError tags driver-level serialization failures as recompute conflicts
func (s *Store) mapError(err error) error {
	if errors.Is(err, domain.ErrRecomputeConflict) {
		return err
	}
	if s.dialect.IsConflict != nil && s.dialect.IsConflict(err) {
		return fmt.Errorf("%w: %w", domain.ErrRecomputeConflict, err)
	}
	return err
}

// conn scopes queries to one transaction
type conn struct {
	tx     *sql.Tx
	rebind func(string) string
}

func (c *conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.tx.ExecContext(ctx, c.rebind(query), args...)
}

func (c *conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.tx.QueryContext(ctx, c.rebind(query), args...)
}

func (c *conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.tx.QueryRowContext(ctx, c.rebind(query), args...)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func parseMoney(s, column string) (domain.Money, error) {
	m, err := domain.ParseMoney(s)
	if err != nil {
		return domain.ZeroMoney, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return m, nil
}

func parsePercent(s, column string) (domain.Percent, error) {
	p, err := domain.ParsePercent(s)
	if err != nil {
		return domain.Percent{}, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return p, nil
}
