package calculator

import (
	"github.com/simaogato/dealflow-backend/internal/domain"
)

// Result holds the fields derived from a payment (or deal) amount
type Result struct {
	Amount      domain.Money
	ReferralFee domain.Money
	GCI         domain.Money
	HouseSplit  domain.Money
	AGCI        domain.Money
}

// Calculate derives referral fee, GCI, house split and AGCI from an amount.
// Logic:
//  1. referral_fee = amount * referral_fee_percent / 100 (rounded)
//  2. gci          = amount - referral_fee
//  3. house_split  = gci * house_percent / 100 (rounded)
//  4. agci         = gci - house_split
//
// Percentages are validated when the deal is written, so this never fails.
func Calculate(amount domain.Money, referralFeePercent, housePercent domain.Percent) Result {
	referralFee := amount.ApplyPercent(referralFeePercent)
	gci := amount.Sub(referralFee)
	houseSplit := gci.ApplyPercent(housePercent)

	return Result{
		Amount:      amount,
		ReferralFee: referralFee,
		GCI:         gci,
		HouseSplit:  houseSplit,
		AGCI:        gci.Sub(houseSplit),
	}
}

// CalculatePayment runs Calculate with the deal's percentages on the payment's current amount
func CalculatePayment(payment *domain.Payment, deal *domain.Deal) Result {
	return Calculate(payment.Amount, deal.ReferralFeePercent, deal.HousePercent)
}

// CalculateDeal runs Calculate on the deal's whole fee.
// The templated split mode distributes this deal-level AGCI.
func CalculateDeal(deal *domain.Deal) Result {
	return Calculate(deal.Fee, deal.ReferralFeePercent, deal.HousePercent)
}

// Apply copies the derived fields onto the payment
func (r Result) Apply(payment *domain.Payment) {
	payment.ReferralFee = r.ReferralFee
	payment.GCI = r.GCI
	payment.HouseSplit = r.HouseSplit
	payment.AGCI = r.AGCI
}
