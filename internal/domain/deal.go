package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Deal represents a commission-generating engagement.
// Category percentages are independent weights applied to AGCI and need not sum to 100.
type Deal struct {
	ID                 uuid.UUID
	Name               string
	Fee                Money // Total fee scheduled across all payments
	ReferralFeePercent Percent
	HousePercent       Percent
	OriginationPercent Percent
	SitePercent        Percent
	DealPercent        Percent
	NumberOfPayments   int
	UpdatedAt          time.Time
}

// Validate rejects malformed economics before they reach any calculator
func (d *Deal) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: deal name cannot be empty", ErrInvalidInput)
	}
	if d.Fee.IsNegative() {
		return ErrInvalidAmount
	}
	if d.NumberOfPayments <= 0 {
		return ErrInvalidPaymentCount
	}

	checks := []struct {
		field string
		value Percent
	}{
		{"referral_fee_percent", d.ReferralFeePercent},
		{"house_percent", d.HousePercent},
		{"origination_percent", d.OriginationPercent},
		{"site_percent", d.SitePercent},
		{"deal_percent", d.DealPercent},
	}
	for _, c := range checks {
		if err := c.value.Validate(c.field); err != nil {
			return err
		}
	}

	return nil
}

// ScheduledPaymentAmount is the amount every templated payment carries
func (d *Deal) ScheduledPaymentAmount() Money {
	return d.Fee.DivideBy(d.NumberOfPayments)
}

// CategoryPercent returns the deal-level weight of a category
func (d *Deal) CategoryPercent(c Category) Percent {
	switch c {
	case CategoryOrigination:
		return d.OriginationPercent
	case CategorySite:
		return d.SitePercent
	default:
		return d.DealPercent
	}
}

// Changes returns the set of economic fields that differ between d and next
func (d *Deal) Changes(next *Deal) DealFields {
	var changed DealFields
	if !d.Fee.Equal(next.Fee) {
		changed |= FieldFee
	}
	if d.NumberOfPayments != next.NumberOfPayments {
		changed |= FieldPaymentCount
	}
	if !d.ReferralFeePercent.Equal(next.ReferralFeePercent) {
		changed |= FieldReferralFeePercent
	}
	if !d.HousePercent.Equal(next.HousePercent) {
		changed |= FieldHousePercent
	}
	if !d.OriginationPercent.Equal(next.OriginationPercent) ||
		!d.SitePercent.Equal(next.SitePercent) ||
		!d.DealPercent.Equal(next.DealPercent) {
		changed |= FieldCategoryPercents
	}
	return changed
}

// DealFields is a bit set of deal attributes that changed in a write
type DealFields uint8

const (
	FieldFee DealFields = 1 << iota
	FieldPaymentCount
	FieldReferralFeePercent
	FieldHousePercent
	FieldCategoryPercents

	AllDealFields = FieldFee | FieldPaymentCount | FieldReferralFeePercent | FieldHousePercent | FieldCategoryPercents
)

var dealFieldNames = []struct {
	field DealFields
	name  string
}{
	{FieldFee, "fee"},
	{FieldPaymentCount, "number_of_payments"},
	{FieldReferralFeePercent, "referral_fee_percent"},
	{FieldHousePercent, "house_percent"},
	{FieldCategoryPercents, "category_percents"},
}

// Has reports whether any of the given fields is in the set
func (f DealFields) Has(fields DealFields) bool {
	return f&fields != 0
}

// AffectsScheduledAmount reports whether templated payment amounts must be recomputed
func (f DealFields) AffectsScheduledAmount() bool {
	return f.Has(FieldFee | FieldPaymentCount)
}

// Names lists the fields in the set, for logging and transport
func (f DealFields) Names() []string {
	names := make([]string, 0, len(dealFieldNames))
	for _, n := range dealFieldNames {
		if f.Has(n.field) {
			names = append(names, n.name)
		}
	}
	return names
}

// ParseDealFields converts field names back into a set.
// Unknown names are rejected so a typo cannot silently skip a recompute.
func ParseDealFields(names []string) (DealFields, error) {
	var f DealFields
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		matched := false
		for _, n := range dealFieldNames {
			if n.name == name {
				f |= n.field
				matched = true
				break
			}
		}
		if name == "all" {
			f |= AllDealFields
			matched = true
		}
		if !matched {
			return 0, fmt.Errorf("%w: unknown deal field %q", ErrInvalidInput, raw)
		}
	}
	return f, nil
}
