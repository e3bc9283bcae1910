package domain

import (
	"context"

	"github.com/google/uuid"
)

// DealRepository defines the interface for deal persistence operations
type DealRepository interface {
	// GetByID retrieves a deal by its ID; ErrNotFound if missing
	GetByID(ctx context.Context, id uuid.UUID) (*Deal, error)

	// Create creates a new deal
	Create(ctx context.Context, deal *Deal) error

	// Update overwrites the deal's economics
	Update(ctx context.Context, deal *Deal) error
}

// PaymentRepository defines the interface for payment persistence operations
type PaymentRepository interface {
	// GetByID retrieves a payment by its ID; ErrNotFound if missing
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// ListByDeal returns a deal's payments ordered by sequence
	ListByDeal(ctx context.Context, dealID uuid.UUID) ([]*Payment, error)

	// Create inserts a new payment with Version 1
	Create(ctx context.Context, payment *Payment) error

	// Update writes amount, override state and derived fields.
	// It only succeeds if the stored version still equals payment.Version,
	// otherwise it returns ErrRecomputeConflict. On success payment.Version is bumped.
	Update(ctx context.Context, payment *Payment) error

	// Delete removes a payment and its splits
	Delete(ctx context.Context, id uuid.UUID) error
}

// CommissionSplitTemplateRepository defines the interface for split template persistence
type CommissionSplitTemplateRepository interface {
	// ListByDeal returns the deal's template rows ordered by participant ID
	ListByDeal(ctx context.Context, dealID uuid.UUID) ([]CommissionSplitTemplate, error)

	// ReplaceForDeal swaps every template row of a deal for the given set
	ReplaceForDeal(ctx context.Context, dealID uuid.UUID, templates []CommissionSplitTemplate) error
}

// PaymentSplitRepository defines the interface for payment split persistence
type PaymentSplitRepository interface {
	// ListByPayment returns a payment's splits ordered by participant ID
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]PaymentSplit, error)

	// ReplaceForPayment deletes every split of the payment and inserts the given rows
	ReplaceForPayment(ctx context.Context, paymentID uuid.UUID, splits []PaymentSplit) error
}

// Repositories groups the repositories bound to one unit of work
type Repositories struct {
	Deals     DealRepository
	Payments  PaymentRepository
	Templates CommissionSplitTemplateRepository
	Splits    PaymentSplitRepository
}

// Store opens units of work against the persistent store.
// WithinTx commits if fn returns nil and rolls back otherwise; no partial
// state written inside fn is ever observable by other readers.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
