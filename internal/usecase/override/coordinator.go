// Package override owns the payment override flag.
// It is the only code that reads OverrideMode to decide how a payment's
// amount is obtained and which split mode its recompute runs in.
package override

import (
	"strings"
	"time"

	"github.com/simaogato/dealflow-backend/internal/domain"
	"github.com/simaogato/dealflow-backend/internal/usecase/allocator"
)

// Trigger identifies what caused a payment to be recomputed
type Trigger struct {
	Kind          TriggerKind
	ChangedFields domain.DealFields // Only meaningful for TriggerDealChanged
}

// TriggerKind enumerates the writes that fan out into payment recomputes
type TriggerKind string

const (
	TriggerDealChanged            TriggerKind = "deal_changed"
	TriggerTemplateChanged        TriggerKind = "template_changed"
	TriggerPaymentOverridden      TriggerKind = "payment_overridden"
	TriggerPaymentOverrideCleared TriggerKind = "payment_override_cleared"
	TriggerPaymentScheduled       TriggerKind = "payment_scheduled"
)

// Coordinator reads and writes the override flag
type Coordinator struct {
	now func() time.Time
}

// NewCoordinator creates a Coordinator using the wall clock
func NewCoordinator() *Coordinator {
	return &Coordinator{now: time.Now}
}

// NewCoordinatorWithClock creates a Coordinator with a fixed clock, for tests and replays
func NewCoordinatorWithClock(now func() time.Time) *Coordinator {
	return &Coordinator{now: now}
}

// SetOverride freezes the payment's amount at newAmount on behalf of actor
func (c *Coordinator) SetOverride(payment *domain.Payment, newAmount domain.Money, actor string) error {
	if newAmount.IsNegative() {
		return domain.ErrInvalidAmount
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return domain.ErrMissingActor
	}

	at := c.now().UTC()
	payment.Amount = newAmount
	payment.OverrideMode = domain.OverrideModeOverridden
	payment.OverriddenAt = &at
	payment.OverriddenBy = actor
	return nil
}

// ClearOverride returns the payment to templated mode and restores the scheduled amount
func (c *Coordinator) ClearOverride(payment *domain.Payment, deal *domain.Deal) {
	payment.OverrideMode = domain.OverrideModeTemplated
	payment.OverriddenAt = nil
	payment.OverriddenBy = ""
	payment.Amount = deal.ScheduledPaymentAmount()
}

// ModeFor picks the split mode for a payment whose AGCI is already current
func (c *Coordinator) ModeFor(payment *domain.Payment, deal *domain.Deal) allocator.SplitMode {
	if payment.IsOverridden() {
		return allocator.Derived{AGCI: payment.AGCI}
	}
	return allocator.Templated{PaymentCount: deal.NumberOfPayments}
}

// ShouldRecomputeAmount reports whether the trigger may rewrite the payment's amount.
// An overridden amount is never touched; a templated one only follows fee/count changes
// or a fresh schedule.
func (c *Coordinator) ShouldRecomputeAmount(payment *domain.Payment, trigger Trigger) bool {
	if payment.IsOverridden() {
		return false
	}
	switch trigger.Kind {
	case TriggerDealChanged:
		return trigger.ChangedFields.AffectsScheduledAmount()
	case TriggerPaymentScheduled:
		return true
	default:
		return false
	}
}
