package allocator

import (
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/simaogato/dealflow-backend/internal/domain"
	"github.com/simaogato/dealflow-backend/internal/usecase/calculator"
)

// SplitMode selects how a payment's AGCI is distributed to participants.
// It is a closed set: Templated or Derived.
type SplitMode interface {
	isSplitMode()
	String() string
}

// Templated distributes the template's pre-agreed whole-deal amounts evenly
// across PaymentCount payments. It never looks at the payment's own AGCI.
type Templated struct {
	PaymentCount int
}

// Derived distributes the payment's actual AGCI through the deal's category
// weights and the template's participant percentages.
type Derived struct {
	AGCI domain.Money
}

func (Templated) isSplitMode() {}
func (Derived) isSplitMode()   {}

func (Templated) String() string { return "templated" }
func (Derived) String() string   { return "derived" }

// Distribute calculates every participant's split of one payment.
// Logic:
//   - One split per template row; participants without a row get no split
//   - Each category amount is rounded independently (half-even to cents)
//   - Rounding residue is NOT reconciled onto any participant: the sum of
//     totals may differ from the distributable amount by up to one cent per
//     participant
//
// Output is sorted by participant ID so repeated runs produce identical rows.
func Distribute(
	paymentID uuid.UUID,
	deal *domain.Deal,
	templates []domain.CommissionSplitTemplate,
	mode SplitMode,
) ([]domain.PaymentSplit, error) {
	if deal == nil {
		return nil, errors.New("deal is required")
	}

	var categoryTotals map[domain.Category]domain.Money
	var divisor int

	switch m := mode.(type) {
	case Templated:
		if m.PaymentCount <= 0 {
			return nil, domain.ErrInvalidPaymentCount
		}
		categoryTotals = CategoryTotals(calculator.CalculateDeal(deal).AGCI, deal)
		divisor = m.PaymentCount
	case Derived:
		categoryTotals = CategoryTotals(m.AGCI, deal)
		divisor = 1
	default:
		return nil, errors.New("unknown split mode")
	}

	// Create a copy of templates to avoid mutating the caller's slice
	sorted := make([]domain.CommissionSplitTemplate, len(templates))
	copy(sorted, templates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ParticipantID.String() < sorted[j].ParticipantID.String()
	})

	splits := make([]domain.PaymentSplit, 0, len(sorted))
	for i := range sorted {
		tmpl := &sorted[i]
		amounts := make(map[domain.Category]domain.Money, len(domain.Categories))
		for _, c := range domain.Categories {
			share := categoryTotals[c].ApplyPercent(tmpl.Percent(c))
			if divisor > 1 {
				share = share.DivideBy(divisor)
			}
			amounts[c] = share
		}

		splits = append(splits, domain.NewPaymentSplit(
			paymentID,
			tmpl.ParticipantID,
			amounts[domain.CategoryOrigination],
			amounts[domain.CategorySite],
			amounts[domain.CategoryDeal],
		))
	}

	return splits, nil
}

// CategoryTotals applies the deal's category weights to an AGCI amount
func CategoryTotals(agci domain.Money, deal *domain.Deal) map[domain.Category]domain.Money {
	totals := make(map[domain.Category]domain.Money, len(domain.Categories))
	for _, c := range domain.Categories {
		totals[c] = agci.ApplyPercent(deal.CategoryPercent(c))
	}
	return totals
}

// MaxResidue is the largest accepted gap between distributable AGCI and the sum of split totals
func MaxResidue(participants int) domain.Money {
	return domain.MoneyFromCents(int64(participants))
}
