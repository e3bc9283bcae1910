package recalc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/dealflow-backend/internal/adapter/repository/sqlite"
	"github.com/simaogato/dealflow-backend/internal/domain"
	"github.com/simaogato/dealflow-backend/internal/metrics"
	"github.com/simaogato/dealflow-backend/internal/usecase/allocator"
	"github.com/simaogato/dealflow-backend/internal/usecase/override"
)

var (
	ana = uuid.MustParse("0b5c2a52-4d3e-4f0e-9a51-000000000001")
	bea = uuid.MustParse("0b5c2a52-4d3e-4f0e-9a51-000000000002")
	cai = uuid.MustParse("0b5c2a52-4d3e-4f0e-9a51-000000000003")
)

type observation struct {
	trigger  string
	outcome  string
	payments int
}

type fakeRecorder struct {
	mu  sync.Mutex
	obs []observation
}

func (r *fakeRecorder) ObserveRecompute(trigger, outcome string, payments int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, observation{trigger, outcome, payments})
}

func (r *fakeRecorder) last() observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.obs[len(r.obs)-1]
}

type fixture struct {
	store    domain.Store
	orch     *Orchestrator
	recorder *fakeRecorder
	deal     *domain.Deal
	payments []*domain.Payment
}

// scenarioDeal is the reference deal: $10,000 over two payments, 10% referral,
// 40% house, 50/25/25 categories
func scenarioDeal() *domain.Deal {
	return &domain.Deal{
		Name:               "Harbor Point lease",
		Fee:                domain.MustMoney("10000"),
		ReferralFeePercent: domain.PercentFromInt(10),
		HousePercent:       domain.PercentFromInt(40),
		OriginationPercent: domain.PercentFromInt(50),
		SitePercent:        domain.PercentFromInt(25),
		DealPercent:        domain.PercentFromInt(25),
		NumberOfPayments:   2,
	}
}

func soleParticipant() []domain.CommissionSplitTemplate {
	return []domain.CommissionSplitTemplate{{
		ParticipantID:      ana,
		ParticipantName:    "Ana",
		OriginationPercent: domain.PercentFromInt(100),
		SitePercent:        domain.PercentFromInt(100),
		DealPercent:        domain.PercentFromInt(100),
	}}
}

func newFixtureWith(t *testing.T, wrap func(domain.Store) domain.Store, templates []domain.CommissionSplitTemplate) *fixture {
	t.Helper()

	base, err := sqlite.Open(filepath.Join(t.TempDir(), "recalc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { base.Close() })

	var store domain.Store = base
	if wrap != nil {
		store = wrap(base)
	}

	recorder := &fakeRecorder{}
	clock := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	orch := NewOrchestrator(
		store,
		override.NewCoordinatorWithClock(clock),
		nil,
		recorder,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	deal := scenarioDeal()
	result, err := orch.ScheduleDeal(context.Background(), deal, templates)
	require.NoError(t, err)
	require.Len(t, result.Payments, deal.NumberOfPayments)

	return &fixture{store: store, orch: orch, recorder: recorder, deal: deal, payments: result.Payments}
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, nil, soleParticipant())
}

// load reads the committed state of a deal's payments and splits
func (f *fixture) load(t *testing.T) ([]*domain.Payment, map[uuid.UUID][]domain.PaymentSplit) {
	t.Helper()
	var payments []*domain.Payment
	splits := make(map[uuid.UUID][]domain.PaymentSplit)
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		var err error
		payments, err = repos.Payments.ListByDeal(ctx, f.deal.ID)
		if err != nil {
			return err
		}
		for _, p := range payments {
			s, err := repos.Splits.ListByPayment(ctx, p.ID)
			if err != nil {
				return err
			}
			splits[p.ID] = s
		}
		return nil
	})
	require.NoError(t, err)
	return payments, splits
}

func assertDerived(t *testing.T, p *domain.Payment, amount, referral, gci, house, agci string) {
	t.Helper()
	assert.Equal(t, amount, p.Amount.String(), "amount")
	assert.Equal(t, referral, p.ReferralFee.String(), "referral fee")
	assert.Equal(t, gci, p.GCI.String(), "gci")
	assert.Equal(t, house, p.HouseSplit.String(), "house split")
	assert.Equal(t, agci, p.AGCI.String(), "agci")
}

func assertSplit(t *testing.T, s domain.PaymentSplit, origination, site, deal, total string) {
	t.Helper()
	assert.Equal(t, origination, s.OriginationAmount.String(), "origination")
	assert.Equal(t, site, s.SiteAmount.String(), "site")
	assert.Equal(t, deal, s.DealAmount.String(), "deal")
	assert.Equal(t, total, s.Total.String(), "total")
}

func TestScheduleDeal_TemplatedScenario(t *testing.T) {
	f := newFixture(t)
	payments, splits := f.load(t)

	require.Len(t, payments, 2)
	for i, p := range payments {
		assert.Equal(t, i+1, p.Sequence)
		assert.Equal(t, domain.OverrideModeTemplated, p.OverrideMode)
		assertDerived(t, p, "5000.00", "500.00", "4500.00", "1800.00", "2700.00")

		require.Len(t, splits[p.ID], 1)
		s := splits[p.ID][0]
		assert.Equal(t, ana, s.ParticipantID)
		assert.Equal(t, domain.SplitID(p.ID, ana), s.ID)
		// Deal-level AGCI 5400 split across two payments
		assertSplit(t, s, "1350.00", "675.00", "675.00", "2700.00")
	}

	obs := f.recorder.last()
	assert.Equal(t, string(override.TriggerPaymentScheduled), obs.trigger)
	assert.Equal(t, metrics.OutcomeOK, obs.outcome)
	assert.Equal(t, 2, obs.payments)
}

func TestOverridePaymentAmount_DerivedScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.payments[0]

	result, err := f.orch.OverridePaymentAmount(ctx, first.ID, domain.MustMoney("9812"), "  ana@example.com ")
	require.NoError(t, err)
	require.Len(t, result.Payments, 1)

	payments, splits := f.load(t)
	p := payments[0]
	assert.Equal(t, domain.OverrideModeOverridden, p.OverrideMode)
	assert.Equal(t, "ana@example.com", p.OverriddenBy)
	require.NotNil(t, p.OverriddenAt)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), *p.OverriddenAt)
	assertDerived(t, p, "9812.00", "981.20", "8830.80", "3532.32", "5298.48")

	require.Len(t, splits[p.ID], 1)
	assertSplit(t, splits[p.ID][0], "2649.24", "1324.62", "1324.62", "5298.48")

	// The other payment is untouched
	other := payments[1]
	assert.Equal(t, int64(1), other.Version)
	assertDerived(t, other, "5000.00", "500.00", "4500.00", "1800.00", "2700.00")
	assertSplit(t, splits[other.ID][0], "1350.00", "675.00", "675.00", "2700.00")
}

func TestClearPaymentOverride_RestoresTemplatedScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.payments[0]

	before, beforeSplits := f.load(t)

	_, err := f.orch.OverridePaymentAmount(ctx, first.ID, domain.MustMoney("9812"), "ana")
	require.NoError(t, err)
	_, err = f.orch.ClearPaymentOverride(ctx, first.ID)
	require.NoError(t, err)

	after, afterSplits := f.load(t)
	p := after[0]
	assert.Equal(t, domain.OverrideModeTemplated, p.OverrideMode)
	assert.Nil(t, p.OverriddenAt)
	assert.Empty(t, p.OverriddenBy)
	assertDerived(t, p, before[0].Amount.String(), before[0].ReferralFee.String(),
		before[0].GCI.String(), before[0].HouseSplit.String(), before[0].AGCI.String())

	require.Len(t, afterSplits[p.ID], 1)
	want := beforeSplits[p.ID][0]
	got := afterSplits[p.ID][0]
	assert.Equal(t, want.ID, got.ID)
	assertSplit(t, got, want.OriginationAmount.String(), want.SiteAmount.String(),
		want.DealAmount.String(), want.Total.String())
}

func TestClearPaymentOverride_OnTemplatedPaymentIsNoop(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.ClearPaymentOverride(context.Background(), f.payments[1].ID)
	require.NoError(t, err)

	payments, _ := f.load(t)
	assertDerived(t, payments[1], "5000.00", "500.00", "4500.00", "1800.00", "2700.00")
}

func TestUpdateDeal_FeeChangeFollowsTemplatedOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.OverridePaymentAmount(ctx, f.payments[0].ID, domain.MustMoney("9812"), "ana")
	require.NoError(t, err)

	fee := domain.MustMoney("12000")
	result, err := f.orch.UpdateDeal(ctx, DealUpdate{DealID: f.deal.ID, Fee: &fee})
	require.NoError(t, err)
	require.Len(t, result.Payments, 2)

	payments, splits := f.load(t)

	// Overridden amount is frozen; derived fields recomputed with unchanged percentages
	assertDerived(t, payments[0], "9812.00", "981.20", "8830.80", "3532.32", "5298.48")
	assertSplit(t, splits[payments[0].ID][0], "2649.24", "1324.62", "1324.62", "5298.48")

	// Templated amount follows fee / N; deal-level AGCI is now 6480
	assertDerived(t, payments[1], "6000.00", "600.00", "5400.00", "2160.00", "3240.00")
	assertSplit(t, splits[payments[1].ID][0], "1620.00", "810.00", "810.00", "3240.00")
}

func TestUpdateDeal_PercentChangeKeepsAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	house := domain.PercentFromInt(50)
	_, err := f.orch.UpdateDeal(ctx, DealUpdate{DealID: f.deal.ID, HousePercent: &house})
	require.NoError(t, err)

	payments, splits := f.load(t)
	for _, p := range payments {
		assertDerived(t, p, "5000.00", "500.00", "4500.00", "2250.00", "2250.00")
		// Deal-level AGCI 4500 -> 2250/1125/1125, halved per payment
		assertSplit(t, splits[p.ID][0], "1125.00", "562.50", "562.50", "2250.00")
	}
}

func TestUpdateDeal_PaymentCountReconcilesSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var logs bytes.Buffer
	f.orch.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	_, err := f.orch.OverridePaymentAmount(ctx, f.payments[0].ID, domain.MustMoney("9812"), "ana")
	require.NoError(t, err)

	three := 3
	result, err := f.orch.UpdateDeal(ctx, DealUpdate{DealID: f.deal.ID, NumberOfPayments: &three})
	require.NoError(t, err)
	require.Len(t, result.Payments, 3)
	assert.Empty(t, result.Deleted)
	assert.Contains(t, logs.String(), "payment schedule reconciled")
	assert.Contains(t, logs.String(), "created=1")

	payments, splits := f.load(t)
	require.Len(t, payments, 3)
	assert.Equal(t, "9812.00", payments[0].Amount.String(), "overridden payment keeps its amount")
	for _, p := range payments[1:] {
		assert.Equal(t, domain.OverrideModeTemplated, p.OverrideMode)
		assert.Equal(t, "3333.33", p.Amount.String())
		require.Len(t, splits[p.ID], 1)
		// Deal-level AGCI 5400 over three payments
		assertSplit(t, splits[p.ID][0], "900.00", "450.00", "450.00", "1800.00")
	}

	one := 1
	result, err = f.orch.UpdateDeal(ctx, DealUpdate{DealID: f.deal.ID, NumberOfPayments: &one})
	require.NoError(t, err)
	assert.Len(t, result.Deleted, 2)

	assert.Contains(t, logs.String(), "deleted=2")

	payments, splits = f.load(t)
	require.Len(t, payments, 1)
	assert.Equal(t, 1, payments[0].Sequence)
	assert.Equal(t, "9812.00", payments[0].Amount.String())
	assert.Len(t, splits, 1)

	// A full recompute with the count unchanged reconciles nothing
	logs.Reset()
	_, err = f.orch.RecomputeForDealChange(ctx, f.deal.ID, domain.AllDealFields)
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "payment schedule reconciled")
}

func TestUpdateDeal_NoChangeWritesNothing(t *testing.T) {
	f := newFixture(t)

	fee := domain.MustMoney("10000.00")
	result, err := f.orch.UpdateDeal(context.Background(), DealUpdate{DealID: f.deal.ID, Fee: &fee})
	require.NoError(t, err)
	assert.Empty(t, result.Payments)

	payments, _ := f.load(t)
	for _, p := range payments {
		assert.Equal(t, int64(1), p.Version)
	}
}

func TestUpdateDeal_NameOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	name := "Harbor Point renewal"
	result, err := f.orch.UpdateDeal(ctx, DealUpdate{DealID: f.deal.ID, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, result.Deal.Name)
	assert.Empty(t, result.Payments)

	err = f.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		deal, err := repos.Deals.GetByID(ctx, f.deal.ID)
		require.NoError(t, err)
		assert.Equal(t, name, deal.Name)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateDeal_ValidatesAtBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tooMuch := domain.PercentFromInt(101)
	_, err := f.orch.UpdateDeal(ctx, DealUpdate{DealID: f.deal.ID, ReferralFeePercent: &tooMuch})
	assert.ErrorIs(t, err, domain.ErrInvalidPercentage)
	assert.Contains(t, err.Error(), "referral_fee_percent")

	tooFine := domain.MustPercent("10.12345")
	_, err = f.orch.UpdateDeal(ctx, DealUpdate{DealID: f.deal.ID, ReferralFeePercent: &tooFine})
	assert.ErrorIs(t, err, domain.ErrInvalidPercentage)

	zero := 0
	_, err = f.orch.UpdateDeal(ctx, DealUpdate{DealID: f.deal.ID, NumberOfPayments: &zero})
	assert.ErrorIs(t, err, domain.ErrInvalidPaymentCount)

	negative := domain.MustMoney("-1")
	_, err = f.orch.UpdateDeal(ctx, DealUpdate{DealID: f.deal.ID, Fee: &negative})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	fee := domain.MustMoney("1")
	_, err = f.orch.UpdateDeal(ctx, DealUpdate{DealID: uuid.New(), Fee: &fee})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecomputeForDealChange_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.OverridePaymentAmount(ctx, f.payments[0].ID, domain.MustMoney("9812"), "ana")
	require.NoError(t, err)

	_, err = f.orch.RecomputeForDealChange(ctx, f.deal.ID, domain.AllDealFields)
	require.NoError(t, err)
	firstPayments, firstSplits := f.load(t)

	_, err = f.orch.RecomputeForDealChange(ctx, f.deal.ID, domain.AllDealFields)
	require.NoError(t, err)
	secondPayments, secondSplits := f.load(t)

	require.Len(t, secondPayments, len(firstPayments))
	for i := range firstPayments {
		a, b := firstPayments[i], secondPayments[i]
		assert.Equal(t, *a, *b, "second run rewrites nothing")
		assert.Equal(t, a.Version, b.Version)

		require.Len(t, secondSplits[b.ID], len(firstSplits[a.ID]))
		for j := range firstSplits[a.ID] {
			want, got := firstSplits[a.ID][j], secondSplits[b.ID][j]
			assert.Equal(t, want.ID, got.ID)
			assertSplit(t, got, want.OriginationAmount.String(), want.SiteAmount.String(),
				want.DealAmount.String(), want.Total.String())
		}
	}
}

func TestRecomputeForDealChange_FeeWrittenOutOfBand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		deal, err := repos.Deals.GetByID(ctx, f.deal.ID)
		if err != nil {
			return err
		}
		deal.Fee = domain.MustMoney("8000")
		return repos.Deals.Update(ctx, deal)
	})
	require.NoError(t, err)

	// Only a non-amount field is reported: templated amounts must stay put
	_, err = f.orch.RecomputeForDealChange(ctx, f.deal.ID, domain.FieldHousePercent)
	require.NoError(t, err)
	payments, _ := f.load(t)
	assert.Equal(t, "5000.00", payments[0].Amount.String())

	_, err = f.orch.RecomputeForDealChange(ctx, f.deal.ID, domain.FieldFee)
	require.NoError(t, err)
	payments, splits := f.load(t)
	for _, p := range payments {
		assertDerived(t, p, "4000.00", "400.00", "3600.00", "1440.00", "2160.00")
		assertSplit(t, splits[p.ID][0], "1080.00", "540.00", "540.00", "2160.00")
	}
}

func TestReplaceTemplates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.OverridePaymentAmount(ctx, f.payments[0].ID, domain.MustMoney("9812"), "ana")
	require.NoError(t, err)

	templates := []domain.CommissionSplitTemplate{
		{ParticipantID: ana, ParticipantName: "Ana", OriginationPercent: domain.PercentFromInt(60),
			SitePercent: domain.PercentFromInt(50), DealPercent: domain.PercentFromInt(50)},
		{ParticipantID: bea, ParticipantName: "Bea", OriginationPercent: domain.PercentFromInt(40),
			SitePercent: domain.PercentFromInt(50), DealPercent: domain.PercentFromInt(50)},
	}
	_, err = f.orch.ReplaceTemplates(ctx, f.deal.ID, templates)
	require.NoError(t, err)

	payments, splits := f.load(t)
	assert.Equal(t, "9812.00", payments[0].Amount.String(), "template change never touches amounts")

	overridden := splits[payments[0].ID]
	require.Len(t, overridden, 2)
	assert.Equal(t, ana, overridden[0].ParticipantID)
	// Derived: 2649.24 / 1324.62 / 1324.62 split 60-40 / 50-50 / 50-50
	assertSplit(t, overridden[0], "1589.54", "662.31", "662.31", "2914.16")
	assertSplit(t, overridden[1], "1059.70", "662.31", "662.31", "2384.32")

	templated := splits[payments[1].ID]
	require.Len(t, templated, 2)
	// Templated: deal-level 2700 / 1350 / 1350, per participant, halved
	assertSplit(t, templated[0], "810.00", "337.50", "337.50", "1485.00")
	assertSplit(t, templated[1], "540.00", "337.50", "337.50", "1215.00")

	_, err = f.orch.ReplaceTemplates(ctx, f.deal.ID, append(templates, templates[0]))
	assert.Error(t, err, "duplicate participant is rejected")
}

func TestReplaceTemplates_EmptyTemplateLeavesNoSplits(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.ReplaceTemplates(context.Background(), f.deal.ID, nil)
	require.NoError(t, err)

	payments, splits := f.load(t)
	for _, p := range payments {
		assert.Equal(t, "2700.00", p.AGCI.String())
		assert.Empty(t, splits[p.ID])
	}
}

func TestSumInvariant_WithinResidueTolerance(t *testing.T) {
	thirds := []domain.CommissionSplitTemplate{
		{ParticipantID: ana, OriginationPercent: domain.MustPercent("33.33"), SitePercent: domain.MustPercent("33.33"), DealPercent: domain.MustPercent("33.33")},
		{ParticipantID: bea, OriginationPercent: domain.MustPercent("33.33"), SitePercent: domain.MustPercent("33.33"), DealPercent: domain.MustPercent("33.33")},
		{ParticipantID: cai, OriginationPercent: domain.MustPercent("33.34"), SitePercent: domain.MustPercent("33.34"), DealPercent: domain.MustPercent("33.34")},
	}
	f := newFixtureWith(t, nil, thirds)
	ctx := context.Background()

	_, err := f.orch.OverridePaymentAmount(ctx, f.payments[0].ID, domain.MustMoney("9812.37"), "ana")
	require.NoError(t, err)

	payments, splits := f.load(t)
	tolerance := allocator.MaxResidue(len(thirds))

	derived := payments[0]
	distributable := domain.SumMoney(allocator.CategoryTotals(derived.AGCI, f.deal)[domain.CategoryOrigination],
		allocator.CategoryTotals(derived.AGCI, f.deal)[domain.CategorySite],
		allocator.CategoryTotals(derived.AGCI, f.deal)[domain.CategoryDeal])
	diff := domain.SumTotals(splits[derived.ID]).Sub(distributable).Abs()
	assert.True(t, diff.LessThanOrEqual(tolerance), "derived residue %s exceeds %s", diff, tolerance)

	templated := payments[1]
	dealLevel := domain.MustMoney("5400").DivideBy(f.deal.NumberOfPayments)
	diff = domain.SumTotals(splits[templated.ID]).Sub(dealLevel).Abs()
	assert.True(t, diff.LessThanOrEqual(tolerance), "templated residue %s exceeds %s", diff, tolerance)
}

func TestOverridePaymentAmount_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.OverridePaymentAmount(ctx, f.payments[0].ID, domain.MustMoney("-0.01"), "ana")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.orch.OverridePaymentAmount(ctx, f.payments[0].ID, domain.MustMoney("1"), " ")
	assert.ErrorIs(t, err, domain.ErrMissingActor)

	_, err = f.orch.OverridePaymentAmount(ctx, uuid.New(), domain.MustMoney("1"), "ana")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.orch.ClearPaymentOverride(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	payments, _ := f.load(t)
	assert.Equal(t, int64(1), payments[0].Version, "rejected writes leave the payment alone")
}

func TestScheduleDeal_Validation(t *testing.T) {
	orch := NewOrchestrator(nil, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	deal := scenarioDeal()
	deal.NumberOfPayments = 0
	_, err := orch.ScheduleDeal(ctx, deal, soleParticipant())
	assert.ErrorIs(t, err, domain.ErrInvalidPaymentCount)

	deal = scenarioDeal()
	deal.SitePercent = domain.MustPercent("-5")
	_, err = orch.ScheduleDeal(ctx, deal, soleParticipant())
	assert.ErrorIs(t, err, domain.ErrInvalidPercentage)

	templates := soleParticipant()
	templates[0].DealPercent = domain.MustPercent("100.01")
	_, err = orch.ScheduleDeal(ctx, scenarioDeal(), templates)
	assert.ErrorIs(t, err, domain.ErrInvalidPercentage)

	// Finer than the stored scale would round silently on write
	templates = soleParticipant()
	templates[0].SitePercent = domain.MustPercent("33.333333")
	_, err = orch.ScheduleDeal(ctx, scenarioDeal(), templates)
	assert.ErrorIs(t, err, domain.ErrInvalidPercentage)
	assert.Contains(t, err.Error(), "site_percent")

	deal = scenarioDeal()
	deal.HousePercent = domain.MustPercent("40.00001")
	_, err = orch.ScheduleDeal(ctx, deal, soleParticipant())
	assert.ErrorIs(t, err, domain.ErrInvalidPercentage)
}

func TestScheduleDeal_DuplicateID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	again := scenarioDeal()
	again.ID = f.deal.ID
	again.Fee = domain.MustMoney("1")
	_, err := f.orch.ScheduleDeal(ctx, again, soleParticipant())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.False(t, errors.Is(err, domain.ErrPartialFailure))
	assert.False(t, domain.IsRetryable(err))
	assert.Equal(t, metrics.OutcomeError, f.recorder.last().outcome)

	payments, _ := f.load(t)
	require.Len(t, payments, 2)
	assert.Equal(t, "5000.00", payments[0].Amount.String(), "existing deal untouched")
}

// faultyStore injects repository failures inside an otherwise real unit of work
type faultyStore struct {
	domain.Store
	mu           sync.Mutex
	splitCalls   int
	failSplitsAt int   // 1-based ReplaceForPayment call that fails; 0 disables
	updateErr    error // returned by every Payments.Update when set
}

func (s *faultyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		repos.Splits = &faultySplits{PaymentSplitRepository: repos.Splits, store: s}
		repos.Payments = &faultyPayments{PaymentRepository: repos.Payments, store: s}
		return fn(ctx, repos)
	})
}

type faultySplits struct {
	domain.PaymentSplitRepository
	store *faultyStore
}

func (r *faultySplits) ReplaceForPayment(ctx context.Context, paymentID uuid.UUID, splits []domain.PaymentSplit) error {
	r.store.mu.Lock()
	r.store.splitCalls++
	fail := r.store.failSplitsAt != 0 && r.store.splitCalls == r.store.failSplitsAt
	r.store.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return r.PaymentSplitRepository.ReplaceForPayment(ctx, paymentID, splits)
}

type faultyPayments struct {
	domain.PaymentRepository
	store *faultyStore
}

func (r *faultyPayments) Update(ctx context.Context, payment *domain.Payment) error {
	r.store.mu.Lock()
	err := r.store.updateErr
	r.store.mu.Unlock()
	if err != nil {
		return err
	}
	return r.PaymentRepository.Update(ctx, payment)
}

func TestRecompute_FailureRollsBackWholeBatch(t *testing.T) {
	var faulty *faultyStore
	f := newFixtureWith(t, func(base domain.Store) domain.Store {
		faulty = &faultyStore{Store: base}
		return faulty
	}, soleParticipant())
	ctx := context.Background()

	faulty.mu.Lock()
	faulty.failSplitsAt = faulty.splitCalls + 2 // second payment of the batch
	faulty.mu.Unlock()

	fee := domain.MustMoney("12000")
	_, err := f.orch.UpdateDeal(ctx, DealUpdate{DealID: f.deal.ID, Fee: &fee})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPartialFailure)
	assert.False(t, domain.IsRetryable(err))
	assert.Contains(t, err.Error(), "disk full")

	payments, _ := f.load(t)
	for _, p := range payments {
		assert.Equal(t, "5000.00", p.Amount.String(), "first payment's write was rolled back too")
		assert.Equal(t, int64(1), p.Version)
	}

	err = f.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		deal, err := repos.Deals.GetByID(ctx, f.deal.ID)
		require.NoError(t, err)
		assert.Equal(t, "10000.00", deal.Fee.String(), "deal write is part of the batch")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, metrics.OutcomeError, f.recorder.last().outcome)
}

func TestRecompute_ConflictIsRetryable(t *testing.T) {
	var faulty *faultyStore
	f := newFixtureWith(t, func(base domain.Store) domain.Store {
		faulty = &faultyStore{Store: base}
		return faulty
	}, soleParticipant())
	ctx := context.Background()

	faulty.mu.Lock()
	faulty.updateErr = fmt.Errorf("payment changed: %w", domain.ErrRecomputeConflict)
	faulty.mu.Unlock()

	fee := domain.MustMoney("12000")
	_, err := f.orch.UpdateDeal(ctx, DealUpdate{DealID: f.deal.ID, Fee: &fee})
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.False(t, errors.Is(err, domain.ErrPartialFailure))
	assert.Equal(t, metrics.OutcomeConflict, f.recorder.last().outcome)

	faulty.mu.Lock()
	faulty.updateErr = nil
	faulty.mu.Unlock()

	result, err := f.orch.UpdateDeal(ctx, DealUpdate{DealID: f.deal.ID, Fee: &fee})
	require.NoError(t, err, "retry from scratch succeeds")
	assert.Equal(t, "6000.00", result.Payments[0].Amount.String())
}

func TestRecomputeForDealChange_UnchangedRowsAreNotWritten(t *testing.T) {
	var faulty *faultyStore
	f := newFixtureWith(t, func(base domain.Store) domain.Store {
		faulty = &faultyStore{Store: base}
		return faulty
	}, soleParticipant())
	ctx := context.Background()

	// Any payment or split write would fail the batch
	faulty.mu.Lock()
	faulty.updateErr = errors.New("unexpected payment write")
	faulty.failSplitsAt = faulty.splitCalls + 1
	faulty.mu.Unlock()

	result, err := f.orch.RecomputeForDealChange(ctx, f.deal.ID, domain.AllDealFields)
	require.NoError(t, err)
	require.Len(t, result.Payments, 2)
	for _, p := range result.Payments {
		assert.Equal(t, int64(1), p.Version)
		assertDerived(t, p, "5000.00", "500.00", "4500.00", "1800.00", "2700.00")
	}

	_, err = f.orch.ClearPaymentOverride(ctx, f.payments[0].ID)
	require.NoError(t, err, "clearing a templated payment is a pure refresh")

	payments, _ := f.load(t)
	for _, p := range payments {
		assert.Equal(t, int64(1), p.Version)
	}
}

func TestOverridePaymentAmount_ConcurrentWritersSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := domain.MoneyFromCents(int64(100000 + i))
			_, errs[i] = f.orch.OverridePaymentAmount(ctx, f.payments[0].ID, amount, "ana")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	payments, splits := f.load(t)
	assert.Equal(t, int64(1+len(errs)), payments[0].Version)
	require.Len(t, splits[payments[0].ID], 1)
	assert.True(t, splits[payments[0].ID][0].IsBalanced())
}
