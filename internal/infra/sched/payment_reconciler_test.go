//go:build !integration

package sched_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"workforce-billing/internal/domain"
	"workforce-billing/internal/domain/model"
	"workforce-billing/internal/domain/ports/repository"
	"workforce-billing/internal/infra/sched"
	"workforce-billing/internal/usecase"
)

type stubPaymentRepo struct {
	pending []*model.PaymentIntent
}

var _ repository.PaymentIntentRepository = (*stubPaymentRepo)(nil)

func (s *stubPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.PaymentIntent) error {
	return nil
}
func (s *stubPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentIntent, error) {
	return nil, domain.ErrNotFound
}
func (s *stubPaymentRepo) FindByReference(ctx context.Context, tx repository.Tx, reference string) (*model.PaymentIntent, error) {
	return nil, domain.ErrNotFound
}
func (s *stubPaymentRepo) ListByCompany(ctx context.Context, tx repository.Tx, companyID string) ([]*model.PaymentIntent, error) {
	return nil, nil
}
func (s *stubPaymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, verifiedAt, paidAt *time.Time) (bool, error) {
	return false, nil
}
func (s *stubPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentIntent, error) {
	return s.pending, nil
}

type stubFulfiller struct {
	mu         sync.Mutex
	references []string
}

var _ usecase.PaymentUseCase = (*stubFulfiller)(nil)

func (s *stubFulfiller) InitiateEmployeeLimitUpgrade(ctx context.Context, userID string, n int) (*model.PaymentIntent, error) {
	return nil, domain.ErrOperationFailed
}
func (s *stubFulfiller) InitiateSubscription(ctx context.Context, userID string, plan model.PlanCode) (*model.PaymentIntent, error) {
	return nil, domain.ErrOperationFailed
}
func (s *stubFulfiller) Fulfill(ctx context.Context, reference string) (*usecase.FulfillResult, error) {
	s.mu.Lock()
	s.references = append(s.references, reference)
	s.mu.Unlock()
	return &usecase.FulfillResult{Intent: &model.PaymentIntent{Reference: reference, Status: model.PaymentStatusCompleted}}, nil
}
func (s *stubFulfiller) VerifyPayment(ctx context.Context, callerCompanyID, reference string) (*model.PaymentIntent, error) {
	return nil, domain.ErrNotFound
}
func (s *stubFulfiller) ListByCompany(ctx context.Context, companyID string) ([]*model.PaymentIntent, error) {
	return nil, nil
}
func (s *stubFulfiller) Prices(ctx context.Context) ([]*model.Plan, error) { return nil, nil }

func (s *stubFulfiller) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.references))
	copy(out, s.references)
	return out
}

func TestReconcilerDrivesStalePendingIntents(t *testing.T) {
	logger := zerolog.New(io.Discard)
	repo := &stubPaymentRepo{pending: []*model.PaymentIntent{
		{ID: "1", Reference: "EMP-a-1-abc", Status: model.PaymentStatusPending},
		{ID: "2", Reference: "", Status: model.PaymentStatusPending}, // no reference: skipped
		{ID: "3", Reference: "SUB-b-1-def", Status: model.PaymentStatusPending},
	}}
	uc := &stubFulfiller{}

	rec := sched.NewPaymentReconciler(uc, repo, 10*time.Millisecond, time.Minute, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		refs := uc.seen()
		if len(refs) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("reconciler never drove pending intents, saw %v", refs)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	for _, ref := range uc.seen() {
		if ref == "" {
			t.Fatalf("reconciler fulfilled an intent without a reference")
		}
	}
}
