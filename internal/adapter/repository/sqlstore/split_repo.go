package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/simaogato/dealflow-backend/internal/domain"
)

// splitRepository implements domain.PaymentSplitRepository
type splitRepository struct {
	c *conn
}

// ListByPayment returns a payment's splits ordered by participant ID
func (r *splitRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentSplit, error) {
	query := `
		SELECT id, payment_id, participant_id, origination_amount, site_amount, deal_amount, total
		FROM payment_splits
		WHERE payment_id = ?
		ORDER BY participant_id
	`

	rows, err := r.c.query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment splits: %w", err)
	}
	defer rows.Close()

	splits := make([]domain.PaymentSplit, 0)
	for rows.Next() {
		var s domain.PaymentSplit
		var origination, site, dealAmt, total string
		if err := rows.Scan(&s.ID, &s.PaymentID, &s.ParticipantID, &origination, &site, &dealAmt, &total); err != nil {
			return nil, fmt.Errorf("failed to scan payment split: %w", err)
		}

		if s.OriginationAmount, err = parseMoney(origination, "origination_amount"); err != nil {
			return nil, err
		}
		if s.SiteAmount, err = parseMoney(site, "site_amount"); err != nil {
			return nil, err
		}
		if s.DealAmount, err = parseMoney(dealAmt, "deal_amount"); err != nil {
			return nil, err
		}
		if s.Total, err = parseMoney(total, "total"); err != nil {
			return nil, err
		}
		splits = append(splits, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment splits: %w", err)
	}
	return splits, nil
}

// ReplaceForPayment deletes every split of the payment and inserts the given rows
func (r *splitRepository) ReplaceForPayment(ctx context.Context, paymentID uuid.UUID, splits []domain.PaymentSplit) error {
	if _, err := r.c.exec(ctx, `DELETE FROM payment_splits WHERE payment_id = ?`, paymentID); err != nil {
		return fmt.Errorf("failed to delete payment splits: %w", err)
	}

	query := `
		INSERT INTO payment_splits (id, payment_id, participant_id, origination_amount, site_amount, deal_amount, total)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, s := range splits {
		if s.PaymentID != paymentID {
			return fmt.Errorf("split %s belongs to payment %s, not %s", s.ID, s.PaymentID, paymentID)
		}
		_, err := r.c.exec(ctx, query,
			s.ID,
			paymentID,
			s.ParticipantID,
			s.OriginationAmount.String(),
			s.SiteAmount.String(),
			s.DealAmount.String(),
			s.Total.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert payment split: %w", err)
		}
	}
	return nil
}
