package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// OverrideMode records how a payment's amount was obtained
type OverrideMode string

const (
	// OverrideModeTemplated: amount and every derived field are a pure function of the deal
	OverrideModeTemplated OverrideMode = "TEMPLATED"
	// OverrideModeOverridden: amount was set by a user and is frozen against deal-level changes
	OverrideModeOverridden OverrideMode = "OVERRIDDEN"
)

// Payment represents one installment of a deal's fee
type Payment struct {
	ID           uuid.UUID
	DealID       uuid.UUID
	Sequence     int // 1..Deal.NumberOfPayments
	Amount       Money
	OverrideMode OverrideMode
	OverriddenAt *time.Time // NULL unless OVERRIDDEN
	OverriddenBy string

	// Derived by the AGCI/referral calculator
	ReferralFee Money
	GCI         Money
	HouseSplit  Money
	AGCI        Money

	Version int64 // Bumped on every write; updates compare-and-swap on it
}

// IsOverridden reports whether the amount is user-owned
func (p *Payment) IsOverridden() bool {
	return p.OverrideMode == OverrideModeOverridden
}

// Validate ensures the payment adheres to domain rules
func (p *Payment) Validate() error {
	if p.Sequence <= 0 {
		return errors.New("payment sequence must be positive")
	}
	if p.Amount.IsNegative() {
		return ErrInvalidAmount
	}

	switch p.OverrideMode {
	case OverrideModeTemplated:
		if p.OverriddenAt != nil || p.OverriddenBy != "" {
			return errors.New("templated payment cannot carry override metadata")
		}
	case OverrideModeOverridden:
		if p.OverriddenAt == nil || p.OverriddenBy == "" {
			return errors.New("overridden payment must record when and by whom")
		}
	default:
		return errors.New("payment override mode must be TEMPLATED or OVERRIDDEN")
	}

	return nil
}

// Clone returns a deep copy so callers can mutate without touching a shared snapshot
func (p *Payment) Clone() *Payment {
	c := *p
	if p.OverriddenAt != nil {
		at := *p.OverriddenAt
		c.OverriddenAt = &at
	}
	return &c
}

// SameState reports whether o would persist as the same row as p, ignoring Version
func (p *Payment) SameState(o *Payment) bool {
	if p.ID != o.ID || p.DealID != o.DealID || p.Sequence != o.Sequence {
		return false
	}
	if p.OverrideMode != o.OverrideMode || p.OverriddenBy != o.OverriddenBy {
		return false
	}
	if (p.OverriddenAt == nil) != (o.OverriddenAt == nil) {
		return false
	}
	if p.OverriddenAt != nil && !p.OverriddenAt.Equal(*o.OverriddenAt) {
		return false
	}
	return p.Amount.Equal(o.Amount) &&
		p.ReferralFee.Equal(o.ReferralFee) &&
		p.GCI.Equal(o.GCI) &&
		p.HouseSplit.Equal(o.HouseSplit) &&
		p.AGCI.Equal(o.AGCI)
}
