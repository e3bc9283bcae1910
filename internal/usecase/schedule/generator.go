package schedule

import (
	"errors"

	"github.com/google/uuid"
	"github.com/simaogato/dealflow-backend/internal/domain"
)

// Plan describes how an existing payment schedule must change to match a deal
type Plan struct {
	Create []*domain.Payment // New templated payments for missing sequences
	Delete []*domain.Payment // Payments whose sequence is beyond the deal's count
	Keep   []*domain.Payment // Payments that stay, ordered by sequence
}

// Generate builds the N templated payments of a freshly scheduled deal.
// Amounts are set to the scheduled amount; derived fields are left for the
// recalculation orchestrator.
func Generate(deal *domain.Deal) ([]*domain.Payment, error) {
	plan, err := Reconcile(deal, nil)
	if err != nil {
		return nil, err
	}
	return plan.Create, nil
}

// Reconcile compares the existing payments of a deal against its NumberOfPayments.
//
// Logic:
//   - Sequences 1..N that have no payment get a new TEMPLATED payment
//   - Payments with sequence > N are deleted, whatever their override mode:
//     they are no longer part of the schedule
//   - Everything else is kept untouched; amounts are the orchestrator's concern
//
// Returns an error on a non-positive count or duplicate sequences.
func Reconcile(deal *domain.Deal, existing []*domain.Payment) (Plan, error) {
	if deal.NumberOfPayments <= 0 {
		return Plan{}, domain.ErrInvalidPaymentCount
	}

	bySequence := make(map[int]*domain.Payment, len(existing))
	for _, p := range existing {
		if p.DealID != deal.ID {
			return Plan{}, errors.New("payment does not belong to deal")
		}
		if _, dup := bySequence[p.Sequence]; dup {
			return Plan{}, errors.New("duplicate payment sequence in schedule")
		}
		bySequence[p.Sequence] = p
	}

	plan := Plan{
		Create: make([]*domain.Payment, 0),
		Delete: make([]*domain.Payment, 0),
		Keep:   make([]*domain.Payment, 0, deal.NumberOfPayments),
	}

	amount := deal.ScheduledPaymentAmount()
	for seq := 1; seq <= deal.NumberOfPayments; seq++ {
		if p, ok := bySequence[seq]; ok {
			plan.Keep = append(plan.Keep, p)
			continue
		}
		plan.Create = append(plan.Create, &domain.Payment{
			ID:           uuid.New(),
			DealID:       deal.ID,
			Sequence:     seq,
			Amount:       amount,
			OverrideMode: domain.OverrideModeTemplated,
		})
	}

	for _, p := range existing {
		if p.Sequence > deal.NumberOfPayments {
			plan.Delete = append(plan.Delete, p)
		}
	}

	return plan, nil
}

// Changed reports whether applying the plan writes anything
func (p Plan) Changed() bool {
	return len(p.Create) > 0 || len(p.Delete) > 0
}
