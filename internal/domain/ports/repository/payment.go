package repository

import (
	"context"
	"time"

	"workforce-billing/internal/domain/model"
)

// PaymentIntentRepository persists the billing audit trail. Intents are never
// deleted; status moves through UpdateStatusIfPending only, which is the
// single serialization point for racing completion signals.
type PaymentIntentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.PaymentIntent) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentIntent, error)
	FindByReference(ctx context.Context, tx Tx, reference string) (*model.PaymentIntent, error)
	ListByCompany(ctx context.Context, tx Tx, companyID string) ([]*model.PaymentIntent, error)

	// UpdateStatusIfPending atomically sets the status only where the stored
	// status is still pending (compare-and-swap). It reports whether this
	// caller won the transition.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, status model.PaymentStatus, verifiedAt, paidAt *time.Time) (bool, error)

	// ListPendingOlderThan feeds the reconciler with stale pending intents.
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PaymentIntent, error)
}
