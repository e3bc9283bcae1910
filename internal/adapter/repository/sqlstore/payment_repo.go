package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/simaogato/dealflow-backend/internal/domain"
)

// paymentRepository implements domain.PaymentRepository
type paymentRepository struct {
	c *conn
}

const paymentColumns = `id, deal_id, sequence, amount, override_mode, overridden_at, overridden_by,
	referral_fee, gci, house_split, agci, version`

// GetByID retrieves a payment by its ID
func (r *paymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`

	payment, err := scanPayment(r.c.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payment %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get payment by ID: %w", err)
	}
	return payment, nil
}

// ListByDeal returns a deal's payments ordered by sequence
func (r *paymentRepository) ListByDeal(ctx context.Context, dealID uuid.UUID) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE deal_id = ? ORDER BY sequence`

	rows, err := r.c.query(ctx, query, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]*domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

// Create inserts a new payment with version 1
func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `INSERT INTO payments (` + paymentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	overriddenAt, overriddenBy := overrideColumns(payment)
	_, err := r.c.exec(ctx, query,
		payment.ID,
		payment.DealID,
		payment.Sequence,
		payment.Amount.String(),
		string(payment.OverrideMode),
		overriddenAt,
		overriddenBy,
		payment.ReferralFee.String(),
		payment.GCI.String(),
		payment.HouseSplit.String(),
		payment.AGCI.String(),
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	payment.Version = 1
	return nil
}

// Update writes a payment only if nobody else has since the caller read it
func (r *paymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	query := `
		UPDATE payments
		SET amount = ?, override_mode = ?, overridden_at = ?, overridden_by = ?,
			referral_fee = ?, gci = ?, house_split = ?, agci = ?, version = version + 1
		WHERE id = ? AND version = ?
	`

	overriddenAt, overriddenBy := overrideColumns(payment)
	res, err := r.c.exec(ctx, query,
		payment.Amount.String(),
		string(payment.OverrideMode),
		overriddenAt,
		overriddenBy,
		payment.ReferralFee.String(),
		payment.GCI.String(),
		payment.HouseSplit.String(),
		payment.AGCI.String(),
		payment.ID,
		payment.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var exists int
		err := r.c.queryRow(ctx, `SELECT 1 FROM payments WHERE id = ?`, payment.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("payment %s: %w", payment.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("payment %s changed since version %d: %w", payment.ID, payment.Version, domain.ErrRecomputeConflict)
	}

	payment.Version++
	return nil
}

// Delete removes a payment and its splits
func (r *paymentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.c.exec(ctx, `DELETE FROM payment_splits WHERE payment_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete payment splits: %w", err)
	}

	res, err := r.c.exec(ctx, `DELETE FROM payments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("payment %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func overrideColumns(p *domain.Payment) (sql.NullInt64, sql.NullString) {
	var at sql.NullInt64
	if p.OverriddenAt != nil {
		at = sql.NullInt64{Int64: p.OverriddenAt.UnixMilli(), Valid: true}
	}
	by := sql.NullString{String: p.OverriddenBy, Valid: p.OverriddenBy != ""}
	return at, by
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	var mode string
	var amount, referral, gci, house, agci string
	var overriddenAt sql.NullInt64
	var overriddenBy sql.NullString

	err := row.Scan(
		&p.ID,
		&p.DealID,
		&p.Sequence,
		&amount,
		&mode,
		&overriddenAt,
		&overriddenBy,
		&referral,
		&gci,
		&house,
		&agci,
		&p.Version,
	)
	if err != nil {
		return nil, err
	}

	p.OverrideMode = domain.OverrideMode(mode)
	if overriddenAt.Valid {
		at := time.UnixMilli(overriddenAt.Int64).UTC()
		p.OverriddenAt = &at
	}
	p.OverriddenBy = overriddenBy.String

	if p.Amount, err = parseMoney(amount, "amount"); err != nil {
		return nil, err
	}
	if p.ReferralFee, err = parseMoney(referral, "referral_fee"); err != nil {
		return nil, err
	}
	if p.GCI, err = parseMoney(gci, "gci"); err != nil {
		return nil, err
	}
	if p.HouseSplit, err = parseMoney(house, "house_split"); err != nil {
		return nil, err
	}
	if p.AGCI, err = parseMoney(agci, "agci"); err != nil {
		return nil, err
	}

	return &p, nil
}
