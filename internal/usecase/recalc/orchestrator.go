// Package recalc fans a single write out into the payment recomputes it implies
// and commits them as one unit.
package recalc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/simaogato/dealflow-backend/internal/domain"
	"github.com/simaogato/dealflow-backend/internal/lock"
	"github.com/simaogato/dealflow-backend/internal/metrics"
	"github.com/simaogato/dealflow-backend/internal/usecase/allocator"
	"github.com/simaogato/dealflow-backend/internal/usecase/calculator"
	"github.com/simaogato/dealflow-backend/internal/usecase/override"
	"github.com/simaogato/dealflow-backend/internal/usecase/schedule"
)

// Recorder receives one observation per finished batch
type Recorder interface {
	ObserveRecompute(trigger, outcome string, payments int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRecompute(string, string, int, time.Duration) {}

// Result is the committed state of every payment a batch touched
type Result struct {
	Deal     *domain.Deal
	Payments []*domain.Payment                   // Ordered by sequence
	Splits   map[uuid.UUID][]domain.PaymentSplit // Keyed by payment ID
	Deleted  []uuid.UUID                         // Payments dropped from the schedule
}

func newResult(deal *domain.Deal) *Result {
	return &Result{
		Deal:     deal,
		Payments: make([]*domain.Payment, 0),
		Splits:   make(map[uuid.UUID][]domain.PaymentSplit),
		Deleted:  make([]uuid.UUID, 0),
	}
}

func (r *Result) add(p *domain.Payment, splits []domain.PaymentSplit) {
	r.Payments = append(r.Payments, p)
	r.Splits[p.ID] = splits
}

// Orchestrator owns every write that changes a payment's amount or splits
type Orchestrator struct {
	Store       domain.Store
	Coordinator *override.Coordinator
	Locker      lock.Locker
	Recorder    Recorder
	Logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator. A nil locker, recorder or logger
// falls back to an in-process lock, no metrics and slog.Default().
func NewOrchestrator(
	store domain.Store,
	coordinator *override.Coordinator,
	locker lock.Locker,
	recorder Recorder,
	logger *slog.Logger,
) *Orchestrator {
	if coordinator == nil {
		coordinator = override.NewCoordinator()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		Store:       store,
		Coordinator: coordinator,
		Locker:      locker,
		Recorder:    recorder,
		Logger:      logger,
	}
}

// RecomputeForDealChange recomputes every payment of a deal after the fields
// in changed were written. Templated payments follow fee and count changes;
// overridden payments keep their amount and only refresh derived fields.
// A payment count change also creates or deletes payments to match the schedule.
func (o *Orchestrator) RecomputeForDealChange(ctx context.Context, dealID uuid.UUID, changed domain.DealFields) (*Result, error) {
	trigger := override.Trigger{Kind: override.TriggerDealChanged, ChangedFields: changed}
	return o.run(ctx, dealID, trigger, func(ctx context.Context, repos domain.Repositories) (*Result, error) {
		deal, err := repos.Deals.GetByID(ctx, dealID)
		if err != nil {
			return nil, fmt.Errorf("failed to load deal: %w", err)
		}
		return o.recomputeDeal(ctx, repos, deal, trigger)
	})
}

// OverridePaymentAmount freezes a payment's amount and recomputes it in derived mode
func (o *Orchestrator) OverridePaymentAmount(ctx context.Context, paymentID uuid.UUID, amount domain.Money, actor string) (*Result, error) {
	if amount.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}
	if strings.TrimSpace(actor) == "" {
		return nil, domain.ErrMissingActor
	}
	dealID, err := o.dealOf(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	trigger := override.Trigger{Kind: override.TriggerPaymentOverridden}
	return o.run(ctx, dealID, trigger, func(ctx context.Context, repos domain.Repositories) (*Result, error) {
		return o.recomputeSingle(ctx, repos, paymentID, trigger, func(p *domain.Payment, _ *domain.Deal) error {
			return o.Coordinator.SetOverride(p, amount, actor)
		})
	})
}

// ClearPaymentOverride returns a payment to templated mode. Clearing a payment
// that is not overridden is a no-op apart from refreshing its derived fields.
func (o *Orchestrator) ClearPaymentOverride(ctx context.Context, paymentID uuid.UUID) (*Result, error) {
	dealID, err := o.dealOf(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	trigger := override.Trigger{Kind: override.TriggerPaymentOverrideCleared}
	return o.run(ctx, dealID, trigger, func(ctx context.Context, repos domain.Repositories) (*Result, error) {
		return o.recomputeSingle(ctx, repos, paymentID, trigger, func(p *domain.Payment, deal *domain.Deal) error {
			o.Coordinator.ClearOverride(p, deal)
			return nil
		})
	})
}

// UpdateDeal writes the provided deal fields and recomputes whatever they affect.
// An update that changes nothing commits no payment writes.
func (o *Orchestrator) UpdateDeal(ctx context.Context, update DealUpdate) (*Result, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	var trigger override.Trigger
	result, err := o.run(ctx, update.DealID, override.Trigger{Kind: override.TriggerDealChanged}, func(ctx context.Context, repos domain.Repositories) (*Result, error) {
		current, err := repos.Deals.GetByID(ctx, update.DealID)
		if err != nil {
			return nil, fmt.Errorf("failed to load deal: %w", err)
		}

		next := update.Apply(*current)
		changed := current.Changes(&next)
		if changed == 0 && next.Name == current.Name {
			return newResult(current), nil
		}

		next.UpdatedAt = time.Now().UTC()
		if err := repos.Deals.Update(ctx, &next); err != nil {
			return nil, fmt.Errorf("failed to update deal: %w", err)
		}
		if changed == 0 {
			return newResult(&next), nil
		}

		trigger = override.Trigger{Kind: override.TriggerDealChanged, ChangedFields: changed}
		return o.recomputeDeal(ctx, repos, &next, trigger)
	})
	if err != nil {
		return nil, err
	}

	if trigger.ChangedFields != 0 {
		o.Logger.Debug("deal updated", "deal_id", update.DealID, "changed", trigger.ChangedFields.Names())
	}
	return result, nil
}

// ScheduleDeal creates a deal with its split template and N templated payments
func (o *Orchestrator) ScheduleDeal(ctx context.Context, deal *domain.Deal, templates []domain.CommissionSplitTemplate) (*Result, error) {
	if deal.ID == uuid.Nil {
		deal.ID = uuid.New()
	}
	for i := range templates {
		if templates[i].ID == uuid.Nil {
			templates[i].ID = uuid.New()
		}
		if templates[i].DealID == uuid.Nil {
			templates[i].DealID = deal.ID
		}
	}
	if err := deal.Validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidateTemplates(deal.ID, templates); err != nil {
		return nil, err
	}

	trigger := override.Trigger{Kind: override.TriggerPaymentScheduled}
	return o.run(ctx, deal.ID, trigger, func(ctx context.Context, repos domain.Repositories) (*Result, error) {
		if _, err := repos.Deals.GetByID(ctx, deal.ID); err == nil {
			return nil, fmt.Errorf("deal %s: %w", deal.ID, domain.ErrAlreadyExists)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("failed to load deal: %w", err)
		}

		deal.UpdatedAt = time.Now().UTC()
		if err := repos.Deals.Create(ctx, deal); err != nil {
			return nil, fmt.Errorf("failed to create deal: %w", err)
		}
		if err := repos.Templates.ReplaceForDeal(ctx, deal.ID, templates); err != nil {
			return nil, fmt.Errorf("failed to store split template: %w", err)
		}

		payments, err := schedule.Generate(deal)
		if err != nil {
			return nil, err
		}

		result := newResult(deal)
		for _, p := range payments {
			splits, err := o.recomputePayment(deal, templates, p, trigger)
			if err != nil {
				return nil, err
			}
			if err := persist(ctx, repos, nil, p, splits); err != nil {
				return nil, err
			}
			result.add(p, splits)
		}
		return result, nil
	})
}

// ReplaceTemplates swaps a deal's split template and recomputes every payment.
// Overridden payments keep their amount; their splits follow the new template.
func (o *Orchestrator) ReplaceTemplates(ctx context.Context, dealID uuid.UUID, templates []domain.CommissionSplitTemplate) (*Result, error) {
	for i := range templates {
		if templates[i].ID == uuid.Nil {
			templates[i].ID = uuid.New()
		}
		if templates[i].DealID == uuid.Nil {
			templates[i].DealID = dealID
		}
	}
	if err := domain.ValidateTemplates(dealID, templates); err != nil {
		return nil, err
	}

	trigger := override.Trigger{Kind: override.TriggerTemplateChanged}
	return o.run(ctx, dealID, trigger, func(ctx context.Context, repos domain.Repositories) (*Result, error) {
		deal, err := repos.Deals.GetByID(ctx, dealID)
		if err != nil {
			return nil, fmt.Errorf("failed to load deal: %w", err)
		}
		if err := repos.Templates.ReplaceForDeal(ctx, dealID, templates); err != nil {
			return nil, fmt.Errorf("failed to store split template: %w", err)
		}
		return o.recomputeDeal(ctx, repos, deal, trigger)
	})
}

// recomputeDeal fans a deal or template trigger out over all payments of the deal
func (o *Orchestrator) recomputeDeal(
	ctx context.Context,
	repos domain.Repositories,
	deal *domain.Deal,
	trigger override.Trigger,
) (*Result, error) {
	templates, err := repos.Templates.ListByDeal(ctx, deal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list split template: %w", err)
	}
	payments, err := repos.Payments.ListByDeal(ctx, deal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	result := newResult(deal)

	if trigger.Kind == override.TriggerDealChanged && trigger.ChangedFields.Has(domain.FieldPaymentCount) {
		plan, err := schedule.Reconcile(deal, payments)
		if err != nil {
			return nil, err
		}
		if plan.Changed() {
			o.Logger.Info("payment schedule reconciled",
				"deal_id", deal.ID,
				"payments", deal.NumberOfPayments,
				"created", len(plan.Create),
				"deleted", len(plan.Delete),
			)
		}
		for _, p := range plan.Delete {
			if err := repos.Payments.Delete(ctx, p.ID); err != nil {
				return nil, fmt.Errorf("failed to delete payment %d: %w", p.Sequence, err)
			}
			result.Deleted = append(result.Deleted, p.ID)
		}
		scheduled := override.Trigger{Kind: override.TriggerPaymentScheduled}
		for _, p := range plan.Create {
			splits, err := o.recomputePayment(deal, templates, p, scheduled)
			if err != nil {
				return nil, err
			}
			if err := persist(ctx, repos, nil, p, splits); err != nil {
				return nil, err
			}
			result.add(p, splits)
		}
		payments = plan.Keep
	}

	for _, p := range payments {
		before := p.Clone()
		splits, err := o.recomputePayment(deal, templates, p, trigger)
		if err != nil {
			return nil, err
		}
		if err := persist(ctx, repos, before, p, splits); err != nil {
			return nil, err
		}
		result.add(p, splits)
	}

	sort.Slice(result.Payments, func(i, j int) bool {
		return result.Payments[i].Sequence < result.Payments[j].Sequence
	})
	return result, nil
}

// recomputeSingle applies mutate to one payment and recomputes only that payment
func (o *Orchestrator) recomputeSingle(
	ctx context.Context,
	repos domain.Repositories,
	paymentID uuid.UUID,
	trigger override.Trigger,
	mutate func(p *domain.Payment, deal *domain.Deal) error,
) (*Result, error) {
	payment, err := repos.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	deal, err := repos.Deals.GetByID(ctx, payment.DealID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deal: %w", err)
	}
	templates, err := repos.Templates.ListByDeal(ctx, deal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list split template: %w", err)
	}

	before := payment.Clone()
	if err := mutate(payment, deal); err != nil {
		return nil, err
	}

	splits, err := o.recomputePayment(deal, templates, payment, trigger)
	if err != nil {
		return nil, err
	}
	if err := persist(ctx, repos, before, payment, splits); err != nil {
		return nil, err
	}

	result := newResult(deal)
	result.add(payment, splits)
	return result, nil
}

// recomputePayment runs the fixed per-payment sequence in memory.
// Logic:
//  1. Amount: reset to the scheduled amount if the coordinator allows it
//  2. Calculator: referral fee, GCI, house split and AGCI from the amount
//  3. Split mode: templated or derived, decided by the override flag
//  4. Distributor: one split row per template participant
func (o *Orchestrator) recomputePayment(
	deal *domain.Deal,
	templates []domain.CommissionSplitTemplate,
	payment *domain.Payment,
	trigger override.Trigger,
) ([]domain.PaymentSplit, error) {
	if o.Coordinator.ShouldRecomputeAmount(payment, trigger) {
		payment.Amount = deal.ScheduledPaymentAmount()
	}

	calculator.CalculatePayment(payment, deal).Apply(payment)

	mode := o.Coordinator.ModeFor(payment, deal)

	splits, err := allocator.Distribute(payment.ID, deal, templates, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to distribute payment %d: %w", payment.Sequence, err)
	}

	if err := payment.Validate(); err != nil {
		return nil, fmt.Errorf("payment %d: %w", payment.Sequence, err)
	}
	return splits, nil
}

// persist writes a recomputed payment and its splits. before is the loaded row,
// nil for a new payment. Rows that recompute to what is stored are not rewritten,
// so a repeated recompute leaves payments, versions included, byte-identical.
func persist(ctx context.Context, repos domain.Repositories, before, p *domain.Payment, splits []domain.PaymentSplit) error {
	if before == nil {
		if err := repos.Payments.Create(ctx, p); err != nil {
			return fmt.Errorf("failed to create payment %d: %w", p.Sequence, err)
		}
		if err := repos.Splits.ReplaceForPayment(ctx, p.ID, splits); err != nil {
			return fmt.Errorf("failed to replace splits of payment %d: %w", p.Sequence, err)
		}
		return nil
	}

	if !before.SameState(p) {
		if err := repos.Payments.Update(ctx, p); err != nil {
			return fmt.Errorf("failed to update payment %d: %w", p.Sequence, err)
		}
	}

	stored, err := repos.Splits.ListByPayment(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("failed to list splits of payment %d: %w", p.Sequence, err)
	}
	if domain.SameSplits(stored, splits) {
		return nil
	}
	if err := repos.Splits.ReplaceForPayment(ctx, p.ID, splits); err != nil {
		return fmt.Errorf("failed to replace splits of payment %d: %w", p.Sequence, err)
	}
	return nil
}

// dealOf resolves the deal a payment belongs to, so payment writes take the deal lock.
// A payment never moves between deals, so reading it outside the batch is safe.
func (o *Orchestrator) dealOf(ctx context.Context, paymentID uuid.UUID) (uuid.UUID, error) {
	var dealID uuid.UUID
	err := o.Store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		p, err := repos.Payments.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		dealID = p.DealID
		return nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to load payment %s: %w", paymentID, err)
	}
	return dealID, nil
}

// run serializes on the deal, executes fn in one transaction and reports the outcome
func (o *Orchestrator) run(
	ctx context.Context,
	dealID uuid.UUID,
	trigger override.Trigger,
	fn func(ctx context.Context, repos domain.Repositories) (*Result, error),
) (*Result, error) {
	start := time.Now()
	kind := string(trigger.Kind)

	release, err := o.Locker.Acquire(ctx, lock.DealKey(dealID.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to lock deal %s: %w", dealID, err)
	}
	defer release()

	var result *Result
	err = o.Store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		r, err := fn(ctx, repos)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		err = classify(err)
		if domain.IsRetryable(err) {
			o.Recorder.ObserveRecompute(kind, metrics.OutcomeConflict, 0, elapsed)
			o.Logger.Warn("recompute conflict, batch rolled back", "trigger", kind, "deal_id", dealID, "error", err)
		} else {
			o.Recorder.ObserveRecompute(kind, metrics.OutcomeError, 0, elapsed)
			o.Logger.Error("recompute failed, batch rolled back", "trigger", kind, "deal_id", dealID, "error", err)
		}
		return nil, fmt.Errorf("%s for deal %s: %w", kind, dealID, err)
	}

	o.Recorder.ObserveRecompute(kind, metrics.OutcomeOK, len(result.Payments), elapsed)
	o.Logger.Info("recompute committed",
		"trigger", kind,
		"deal_id", dealID,
		"payments", len(result.Payments),
		"deleted", len(result.Deleted),
		"duration_ms", elapsed.Milliseconds(),
	)
	return result, nil
}

// classify keeps conflicts and missing rows recognizable and marks everything
// else as a rolled-back batch
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrRecomputeConflict),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrPartialFailure):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrPartialFailure, err)
	}
}
