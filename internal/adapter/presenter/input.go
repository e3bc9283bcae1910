package presenter

import (
	"github.com/google/uuid"

	"github.com/simaogato/dealflow-backend/internal/domain"
	"github.com/simaogato/dealflow-backend/internal/usecase/recalc"
)

// TemplateInput is one participant row of a split template
type TemplateInput struct {
	ParticipantID      string `json:"participant_id" binding:"required"`
	ParticipantName    string `json:"participant_name"`
	OriginationPercent string `json:"origination_percent" binding:"required"`
	SitePercent        string `json:"site_percent" binding:"required"`
	DealPercent        string `json:"deal_percent" binding:"required"`
}

// DealInput creates a deal together with its split template
type DealInput struct {
	Name               string          `json:"name" binding:"required"`
	Fee                string          `json:"fee" binding:"required"`
	ReferralFeePercent string          `json:"referral_fee_percent" binding:"required"`
	HousePercent       string          `json:"house_percent" binding:"required"`
	OriginationPercent string          `json:"origination_percent" binding:"required"`
	SitePercent        string          `json:"site_percent" binding:"required"`
	DealPercent        string          `json:"deal_percent" binding:"required"`
	NumberOfPayments   int             `json:"number_of_payments" binding:"required"`
	Templates          []TemplateInput `json:"templates"`
}

// DealPatch changes some fields of a deal; omitted fields stay as stored
type DealPatch struct {
	Name               *string `json:"name"`
	Fee                *string `json:"fee"`
	ReferralFeePercent *string `json:"referral_fee_percent"`
	HousePercent       *string `json:"house_percent"`
	OriginationPercent *string `json:"origination_percent"`
	SitePercent        *string `json:"site_percent"`
	DealPercent        *string `json:"deal_percent"`
	NumberOfPayments   *int    `json:"number_of_payments"`
}

// TemplatesInput replaces a deal's split template
type TemplatesInput struct {
	Templates []TemplateInput `json:"templates"`
}

// ToDomain parses the input into a new deal and its template rows
func (in DealInput) ToDomain() (*domain.Deal, []domain.CommissionSplitTemplate, error) {
	deal := &domain.Deal{
		Name:             in.Name,
		NumberOfPayments: in.NumberOfPayments,
	}

	fee, err := parseMoney("fee", in.Fee)
	if err != nil {
		return nil, nil, err
	}
	deal.Fee = fee

	percents := []struct {
		field string
		raw   string
		dst   *domain.Percent
	}{
		{"referral_fee_percent", in.ReferralFeePercent, &deal.ReferralFeePercent},
		{"house_percent", in.HousePercent, &deal.HousePercent},
		{"origination_percent", in.OriginationPercent, &deal.OriginationPercent},
		{"site_percent", in.SitePercent, &deal.SitePercent},
		{"deal_percent", in.DealPercent, &deal.DealPercent},
	}
	for _, p := range percents {
		if *p.dst, err = parsePercent(p.field, p.raw); err != nil {
			return nil, nil, err
		}
	}

	templates, err := ToTemplates(in.Templates)
	if err != nil {
		return nil, nil, err
	}
	return deal, templates, nil
}

// ToUpdate parses the patch into an update of dealID
func (p DealPatch) ToUpdate(dealID uuid.UUID) (recalc.DealUpdate, error) {
	update := recalc.DealUpdate{
		DealID:           dealID,
		Name:             p.Name,
		NumberOfPayments: p.NumberOfPayments,
	}

	if p.Fee != nil {
		fee, err := parseMoney("fee", *p.Fee)
		if err != nil {
			return update, err
		}
		update.Fee = &fee
	}

	percents := []struct {
		field string
		raw   *string
		dst   **domain.Percent
	}{
		{"referral_fee_percent", p.ReferralFeePercent, &update.ReferralFeePercent},
		{"house_percent", p.HousePercent, &update.HousePercent},
		{"origination_percent", p.OriginationPercent, &update.OriginationPercent},
		{"site_percent", p.SitePercent, &update.SitePercent},
		{"deal_percent", p.DealPercent, &update.DealPercent},
	}
	for _, pc := range percents {
		if pc.raw == nil {
			continue
		}
		v, err := parsePercent(pc.field, *pc.raw)
		if err != nil {
			return update, err
		}
		*pc.dst = &v
	}
	return update, nil
}

// ToTemplates parses template rows; IDs and deal IDs are filled in by the orchestrator
func ToTemplates(in []TemplateInput) ([]domain.CommissionSplitTemplate, error) {
	templates := make([]domain.CommissionSplitTemplate, 0, len(in))
	for _, t := range in {
		participantID, err := ParseID("participant_id", t.ParticipantID)
		if err != nil {
			return nil, err
		}
		row := domain.CommissionSplitTemplate{
			ParticipantID:   participantID,
			ParticipantName: t.ParticipantName,
		}
		if row.OriginationPercent, err = parsePercent("origination_percent", t.OriginationPercent); err != nil {
			return nil, err
		}
		if row.SitePercent, err = parsePercent("site_percent", t.SitePercent); err != nil {
			return nil, err
		}
		if row.DealPercent, err = parsePercent("deal_percent", t.DealPercent); err != nil {
			return nil, err
		}
		templates = append(templates, row)
	}
	return templates, nil
}

func parseMoney(field, raw string) (domain.Money, error) {
	m, err := domain.ParseMoney(raw)
	if err != nil {
		return domain.ZeroMoney, &FieldError{Field: field, Err: err}
	}
	return m, nil
}

func parsePercent(field, raw string) (domain.Percent, error) {
	p, err := domain.ParsePercent(raw)
	if err != nil {
		return domain.Percent{}, &FieldError{Field: field, Err: err}
	}
	return p, nil
}

// ParseAmount parses an override amount
func ParseAmount(raw string) (domain.Money, error) {
	return parseMoney("amount", raw)
}
