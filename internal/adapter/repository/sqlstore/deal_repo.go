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

// dealRepository implements domain.DealRepository
type dealRepository struct {
	c *conn
}

const dealColumns = `id, name, fee, referral_fee_percent, house_percent,
	origination_percent, site_percent, deal_percent, number_of_payments, updated_at`

// GetByID retrieves a deal by its ID
func (r *dealRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE id = ?`

	deal, err := scanDeal(r.c.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("deal %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get deal by ID: %w", err)
	}
	return deal, nil
}

// Create creates a new deal
func (r *dealRepository) Create(ctx context.Context, deal *domain.Deal) error {
	query := `
		INSERT INTO deals (` + dealColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.c.exec(ctx, query,
		deal.ID,
		deal.Name,
		deal.Fee.String(),
		deal.ReferralFeePercent.String(),
		deal.HousePercent.String(),
		deal.OriginationPercent.String(),
		deal.SitePercent.String(),
		deal.DealPercent.String(),
		deal.NumberOfPayments,
		deal.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create deal: %w", err)
	}
	return nil
}

// Update overwrites the deal's name and economics
func (r *dealRepository) Update(ctx context.Context, deal *domain.Deal) error {
	query := `
		UPDATE deals
		SET name = ?, fee = ?, referral_fee_percent = ?, house_percent = ?,
			origination_percent = ?, site_percent = ?, deal_percent = ?,
			number_of_payments = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := r.c.exec(ctx, query,
		deal.Name,
		deal.Fee.String(),
		deal.ReferralFeePercent.String(),
		deal.HousePercent.String(),
		deal.OriginationPercent.String(),
		deal.SitePercent.String(),
		deal.DealPercent.String(),
		deal.NumberOfPayments,
		deal.UpdatedAt.UnixMilli(),
		deal.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update deal: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("deal %s: %w", deal.ID, domain.ErrNotFound)
	}
	return nil
}

func scanDeal(row rowScanner) (*domain.Deal, error) {
	var deal domain.Deal
	var fee, referral, house, origination, site, dealPct string
	var updatedAt int64

	err := row.Scan(
		&deal.ID,
		&deal.Name,
		&fee,
		&referral,
		&house,
		&origination,
		&site,
		&dealPct,
		&deal.NumberOfPayments,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if deal.Fee, err = parseMoney(fee, "fee"); err != nil {
		return nil, err
	}
	if deal.ReferralFeePercent, err = parsePercent(referral, "referral_fee_percent"); err != nil {
		return nil, err
	}
	if deal.HousePercent, err = parsePercent(house, "house_percent"); err != nil {
		return nil, err
	}
	if deal.OriginationPercent, err = parsePercent(origination, "origination_percent"); err != nil {
		return nil, err
	}
	if deal.SitePercent, err = parsePercent(site, "site_percent"); err != nil {
		return nil, err
	}
	if deal.DealPercent, err = parsePercent(dealPct, "deal_percent"); err != nil {
		return nil, err
	}
	deal.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	return &deal, nil
}
