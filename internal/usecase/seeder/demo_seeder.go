package seeder

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/simaogato/dealflow-backend/internal/domain"
	"github.com/simaogato/dealflow-backend/internal/usecase/recalc"
)

// Fixed UUIDs for the demo deal so local runs and docs can refer to it
var (
	DemoDealID        = uuid.MustParse("00000000-0000-0000-0000-00000000d001")
	DemoParticipantID = uuid.MustParse("00000000-0000-0000-0000-00000000a001")
	DemoTemplateID    = uuid.MustParse("00000000-0000-0000-0000-00000000c001")
)

// Scheduler creates a deal together with its template and payments
type Scheduler interface {
	ScheduleDeal(ctx context.Context, deal *domain.Deal, templates []domain.CommissionSplitTemplate) (*recalc.Result, error)
}

// DemoSeeder handles seeding of the reference deal
type DemoSeeder struct {
	store     domain.Store
	scheduler Scheduler
}

// NewDemoSeeder creates a new DemoSeeder instance
func NewDemoSeeder(store domain.Store, scheduler Scheduler) *DemoSeeder {
	return &DemoSeeder{
		store:     store,
		scheduler: scheduler,
	}
}

// DemoDeal is the reference scenario: a $10,000 fee over two payments,
// 10% referral, 40% house and 50/25/25 category weights
func DemoDeal() *domain.Deal {
	return &domain.Deal{
		ID:                 DemoDealID,
		Name:               "Demo: Harbor Point lease",
		Fee:                domain.MustMoney("10000"),
		ReferralFeePercent: domain.PercentFromInt(10),
		HousePercent:       domain.PercentFromInt(40),
		OriginationPercent: domain.PercentFromInt(50),
		SitePercent:        domain.PercentFromInt(25),
		DealPercent:        domain.PercentFromInt(25),
		NumberOfPayments:   2,
	}
}

// DemoTemplates gives the whole deal to one participant
func DemoTemplates() []domain.CommissionSplitTemplate {
	return []domain.CommissionSplitTemplate{{
		ID:                 DemoTemplateID,
		DealID:             DemoDealID,
		ParticipantID:      DemoParticipantID,
		ParticipantName:    "Demo Broker",
		OriginationPercent: domain.PercentFromInt(100),
		SitePercent:        domain.PercentFromInt(100),
		DealPercent:        domain.PercentFromInt(100),
	}}
}

// Seed ensures the demo deal exists. If it is already there, nothing is touched,
// including overrides made since the last seed.
// Returns true when the deal was created.
func (s *DemoSeeder) Seed(ctx context.Context) (bool, error) {
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		_, err := repos.Deals.GetByID(ctx, DemoDealID)
		return err
	})
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Errorf("failed to look up demo deal: %w", err)
	}

	if _, err := s.scheduler.ScheduleDeal(ctx, DemoDeal(), DemoTemplates()); err != nil {
		return false, fmt.Errorf("failed to schedule demo deal: %w", err)
	}
	return true, nil
}
