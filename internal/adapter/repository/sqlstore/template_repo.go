package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/simaogato/dealflow-backend/internal/domain"
)

// templateRepository implements domain.CommissionSplitTemplateRepository
type templateRepository struct {
	c *conn
}

// ListByDeal returns the deal's template rows ordered by participant ID
func (r *templateRepository) ListByDeal(ctx context.Context, dealID uuid.UUID) ([]domain.CommissionSplitTemplate, error) {
	query := `
		SELECT id, deal_id, participant_id, participant_name,
			origination_percent, site_percent, deal_percent
		FROM commission_split_templates
		WHERE deal_id = ?
		ORDER BY participant_id
	`

	rows, err := r.c.query(ctx, query, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to list split templates: %w", err)
	}
	defer rows.Close()

	templates := make([]domain.CommissionSplitTemplate, 0)
	for rows.Next() {
		var t domain.CommissionSplitTemplate
		var origination, site, dealPct string
		if err := rows.Scan(
			&t.ID,
			&t.DealID,
			&t.ParticipantID,
			&t.ParticipantName,
			&origination,
			&site,
			&dealPct,
		); err != nil {
			return nil, fmt.Errorf("failed to scan split template: %w", err)
		}

		if t.OriginationPercent, err = parsePercent(origination, "origination_percent"); err != nil {
			return nil, err
		}
		if t.SitePercent, err = parsePercent(site, "site_percent"); err != nil {
			return nil, err
		}
		if t.DealPercent, err = parsePercent(dealPct, "deal_percent"); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating split templates: %w", err)
	}
	return templates, nil
}

// ReplaceForDeal swaps every template row of a deal for the given set
func (r *templateRepository) ReplaceForDeal(ctx context.Context, dealID uuid.UUID, templates []domain.CommissionSplitTemplate) error {
	if _, err := r.c.exec(ctx, `DELETE FROM commission_split_templates WHERE deal_id = ?`, dealID); err != nil {
		return fmt.Errorf("failed to delete split templates: %w", err)
	}

	query := `
		INSERT INTO commission_split_templates (id, deal_id, participant_id, participant_name,
			origination_percent, site_percent, deal_percent)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, t := range templates {
		_, err := r.c.exec(ctx, query,
			t.ID,
			dealID,
			t.ParticipantID,
			t.ParticipantName,
			t.OriginationPercent.String(),
			t.SitePercent.String(),
			t.DealPercent.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert split template for participant %s: %w", t.ParticipantID, err)
		}
	}
	return nil
}
