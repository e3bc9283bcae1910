package recalc

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/simaogato/dealflow-backend/internal/domain"
)

// DealUpdate carries the deal fields a caller wants to change; nil fields are left as stored
type DealUpdate struct {
	DealID             uuid.UUID
	Name               *string
	Fee                *domain.Money
	ReferralFeePercent *domain.Percent
	HousePercent       *domain.Percent
	OriginationPercent *domain.Percent
	SitePercent        *domain.Percent
	DealPercent        *domain.Percent
	NumberOfPayments   *int
}

// Validate checks every provided field at the write boundary
func (u DealUpdate) Validate() error {
	if u.DealID == uuid.Nil {
		return fmt.Errorf("%w: deal ID is required", domain.ErrInvalidInput)
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return fmt.Errorf("%w: deal name cannot be empty", domain.ErrInvalidInput)
	}
	if u.Fee != nil && u.Fee.IsNegative() {
		return domain.ErrInvalidAmount
	}
	if u.NumberOfPayments != nil && *u.NumberOfPayments <= 0 {
		return domain.ErrInvalidPaymentCount
	}

	percents := []struct {
		field string
		value *domain.Percent
	}{
		{"referral_fee_percent", u.ReferralFeePercent},
		{"house_percent", u.HousePercent},
		{"origination_percent", u.OriginationPercent},
		{"site_percent", u.SitePercent},
		{"deal_percent", u.DealPercent},
	}
	for _, p := range percents {
		if p.value == nil {
			continue
		}
		if err := p.value.Validate(p.field); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns deal with the provided fields overwritten
func (u DealUpdate) Apply(deal domain.Deal) domain.Deal {
	if u.Name != nil {
		deal.Name = strings.TrimSpace(*u.Name)
	}
	if u.Fee != nil {
		deal.Fee = *u.Fee
	}
	if u.ReferralFeePercent != nil {
		deal.ReferralFeePercent = *u.ReferralFeePercent
	}
	if u.HousePercent != nil {
		deal.HousePercent = *u.HousePercent
	}
	if u.OriginationPercent != nil {
		deal.OriginationPercent = *u.OriginationPercent
	}
	if u.SitePercent != nil {
		deal.SitePercent = *u.SitePercent
	}
	if u.DealPercent != nil {
		deal.DealPercent = *u.DealPercent
	}
	if u.NumberOfPayments != nil {
		deal.NumberOfPayments = *u.NumberOfPayments
	}
	return deal
}
