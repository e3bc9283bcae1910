package summary

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/simaogato/dealflow-backend/internal/domain"
)

// PaymentSummary is one payment with its splits and what the house keeps of it
type PaymentSummary struct {
	Payment        *domain.Payment
	Splits         []domain.PaymentSplit
	Distributed    domain.Money
	HouseRetention domain.Money
}

// ParticipantTotal sums a participant's splits across every payment of the deal
type ParticipantTotal struct {
	ParticipantID   uuid.UUID
	ParticipantName string
	Origination     domain.Money
	Site            domain.Money
	Deal            domain.Money
	Total           domain.Money
}

// Totals aggregates the deal's payments
type Totals struct {
	Amount         domain.Money
	ReferralFee    domain.Money
	GCI            domain.Money
	HouseSplit     domain.Money
	AGCI           domain.Money
	Distributed    domain.Money
	HouseRetention domain.Money
}

// DealSummary is the read model returned by the transports
type DealSummary struct {
	Deal         *domain.Deal
	Templates    []domain.CommissionSplitTemplate
	Payments     []PaymentSummary
	Participants []ParticipantTotal
	Totals       Totals
}

// Service builds deal summaries
type Service struct {
	Store domain.Store
}

// NewService creates a new Service instance
func NewService(store domain.Store) *Service {
	return &Service{Store: store}
}

// GetDealSummary reads a deal and everything derived from it in one consistent snapshot
// Logic:
//   - Payments in sequence order, each with its splits
//   - House retention per payment: AGCI minus the sum of split totals
//   - Participant totals: split amounts summed over payments, named from the template
//     (participants no longer in the template keep an empty name)
//   - Deal totals: sums of the payment figures
func (s *Service) GetDealSummary(ctx context.Context, dealID uuid.UUID) (*DealSummary, error) {
	summary := &DealSummary{}

	err := s.Store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		deal, err := repos.Deals.GetByID(ctx, dealID)
		if err != nil {
			return err
		}
		summary.Deal = deal

		summary.Templates, err = repos.Templates.ListByDeal(ctx, dealID)
		if err != nil {
			return fmt.Errorf("failed to list split template: %w", err)
		}

		payments, err := repos.Payments.ListByDeal(ctx, dealID)
		if err != nil {
			return fmt.Errorf("failed to list payments: %w", err)
		}

		summary.Payments = make([]PaymentSummary, 0, len(payments))
		for _, p := range payments {
			splits, err := repos.Splits.ListByPayment(ctx, p.ID)
			if err != nil {
				return fmt.Errorf("failed to list splits of payment %d: %w", p.Sequence, err)
			}
			summary.Payments = append(summary.Payments, PaymentSummary{
				Payment:        p,
				Splits:         splits,
				Distributed:    domain.SumTotals(splits),
				HouseRetention: domain.HouseRetention(p.AGCI, splits),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get deal summary: %w", err)
	}

	summary.Participants = participantTotals(summary.Templates, summary.Payments)
	summary.Totals = totals(summary.Payments)
	return summary, nil
}

func participantTotals(templates []domain.CommissionSplitTemplate, payments []PaymentSummary) []ParticipantTotal {
	names := make(map[uuid.UUID]string, len(templates))
	for _, t := range templates {
		names[t.ParticipantID] = t.ParticipantName
	}

	byParticipant := make(map[uuid.UUID]*ParticipantTotal)
	for _, ps := range payments {
		for _, split := range ps.Splits {
			pt, ok := byParticipant[split.ParticipantID]
			if !ok {
				pt = &ParticipantTotal{
					ParticipantID:   split.ParticipantID,
					ParticipantName: names[split.ParticipantID],
				}
				byParticipant[split.ParticipantID] = pt
			}
			pt.Origination = pt.Origination.Add(split.OriginationAmount)
			pt.Site = pt.Site.Add(split.SiteAmount)
			pt.Deal = pt.Deal.Add(split.DealAmount)
			pt.Total = pt.Total.Add(split.Total)
		}
	}

	result := make([]ParticipantTotal, 0, len(byParticipant))
	for _, pt := range byParticipant {
		result = append(result, *pt)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ParticipantID.String() < result[j].ParticipantID.String()
	})
	return result
}

func totals(payments []PaymentSummary) Totals {
	var t Totals
	for _, ps := range payments {
		p := ps.Payment
		t.Amount = t.Amount.Add(p.Amount)
		t.ReferralFee = t.ReferralFee.Add(p.ReferralFee)
		t.GCI = t.GCI.Add(p.GCI)
		t.HouseSplit = t.HouseSplit.Add(p.HouseSplit)
		t.AGCI = t.AGCI.Add(p.AGCI)
		t.Distributed = t.Distributed.Add(ps.Distributed)
		t.HouseRetention = t.HouseRetention.Add(ps.HouseRetention)
	}
	return t
}
