package domain

import (
	"github.com/google/uuid"
)

// splitNamespace seeds deterministic split IDs so recomputing twice writes identical rows
var splitNamespace = uuid.MustParse("6f1c9a52-3b0e-4c55-9a0e-2f4d8b7e1a10")

// PaymentSplit is one participant's realized share of a single payment
type PaymentSplit struct {
	ID                uuid.UUID
	PaymentID         uuid.UUID
	ParticipantID     uuid.UUID
	OriginationAmount Money
	SiteAmount        Money
	DealAmount        Money
	Total             Money // Always OriginationAmount + SiteAmount + DealAmount
}

// NewPaymentSplit builds a split row with its total and deterministic ID filled in
func NewPaymentSplit(paymentID, participantID uuid.UUID, origination, site, deal Money) PaymentSplit {
	return PaymentSplit{
		ID:                SplitID(paymentID, participantID),
		PaymentID:         paymentID,
		ParticipantID:     participantID,
		OriginationAmount: origination,
		SiteAmount:        site,
		DealAmount:        deal,
		Total:             SumMoney(origination, site, deal),
	}
}

// SplitID derives the row ID for a (payment, participant) pair
func SplitID(paymentID, participantID uuid.UUID) uuid.UUID {
	name := make([]byte, 0, 32)
	name = append(name, paymentID[:]...)
	name = append(name, participantID[:]...)
	return uuid.NewSHA1(splitNamespace, name)
}

// Amount returns the split's amount for category c
func (s *PaymentSplit) Amount(c Category) Money {
	switch c {
	case CategoryOrigination:
		return s.OriginationAmount
	case CategorySite:
		return s.SiteAmount
	default:
		return s.DealAmount
	}
}

// IsBalanced reports whether Total equals the sum of the category amounts
func (s *PaymentSplit) IsBalanced() bool {
	return s.Total.Equal(SumMoney(s.OriginationAmount, s.SiteAmount, s.DealAmount))
}

// SumTotals adds up the totals of a payment's splits
func SumTotals(splits []PaymentSplit) Money {
	total := ZeroMoney
	for _, s := range splits {
		total = total.Add(s.Total)
	}
	return total
}

// HouseRetention is the part of a payment's AGCI not paid out to any participant
func HouseRetention(agci Money, splits []PaymentSplit) Money {
	return agci.Sub(SumTotals(splits))
}

// SameSplits reports whether two split sets hold the same rows, in any order
func SameSplits(a, b []PaymentSplit) bool {
	if len(a) != len(b) {
		return false
	}
	byID := make(map[uuid.UUID]PaymentSplit, len(a))
	for _, s := range a {
		byID[s.ID] = s
	}
	for _, s := range b {
		o, ok := byID[s.ID]
		if !ok ||
			o.PaymentID != s.PaymentID ||
			o.ParticipantID != s.ParticipantID ||
			!o.OriginationAmount.Equal(s.OriginationAmount) ||
			!o.SiteAmount.Equal(s.SiteAmount) ||
			!o.DealAmount.Equal(s.DealAmount) ||
			!o.Total.Equal(s.Total) {
			return false
		}
	}
	return true
}
