//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"workforce-billing/internal/domain"
	"workforce-billing/internal/domain/model"
	"workforce-billing/internal/domain/ports/adapter"
	"workforce-billing/internal/domain/ports/repository"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func timePtr(t time.Time) *time.Time { return &t }

// =============================
// Repositories
// =============================

// ---- Mock PaymentIntentRepository ----

// MockPaymentRepo is a mutex-guarded in-memory store. UpdateStatusIfPending
// performs a real compare-and-swap under the lock, so the concurrency tests
// exercise the same winner-picks-one semantics as the SQL implementation.
type MockPaymentRepo struct {
	mu    sync.Mutex
	byID  map[string]*model.PaymentIntent
	byRef map[string]string // reference -> id

	SaveFunc func(ctx context.Context, tx repository.Tx, p *model.PaymentIntent) error
}

var _ repository.PaymentIntentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{
		byID:  make(map[string]*model.PaymentIntent),
		byRef: make(map[string]string),
	}
}

func (m *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.PaymentIntent) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byID[p.ID] = &cp
	m.byRef[p.Reference] = p.ID
	return nil
}

func (m *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) FindByReference(ctx context.Context, tx repository.Tx, reference string) (*model.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byRef[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *MockPaymentRepo) ListByCompany(ctx context.Context, tx repository.Tx, companyID string) ([]*model.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentIntent
	for _, p := range m.byID {
		if p.CompanyID == companyID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockPaymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, verifiedAt, paidAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = status
	p.VerifiedAt = verifiedAt
	p.PaidAt = paidAt
	return true, nil
}

func (m *MockPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentIntent
	for _, p := range m.byID {
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockPaymentRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// ---- Mock CompanyRepository ----

type MockCompanyRepo struct {
	mu        sync.Mutex
	companies map[string]*model.Company
}

var _ repository.CompanyRepository = (*MockCompanyRepo)(nil)

func NewMockCompanyRepo(companies ...*model.Company) *MockCompanyRepo {
	m := &MockCompanyRepo{companies: make(map[string]*model.Company)}
	for _, c := range companies {
		cp := *c
		m.companies[c.ID] = &cp
	}
	return m
}

func (m *MockCompanyRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockCompanyRepo) IncrementEmployeeLimit(ctx context.Context, tx repository.Tx, id string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	c.EmployeeLimit += delta
	return c.EmployeeLimit, nil
}

func (m *MockCompanyRepo) UpdateSubscription(ctx context.Context, tx repository.Tx, id string, plan model.PlanCode, status model.SubscriptionStatus, periodEnd time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.SubscriptionPlan = plan
	c.SubscriptionStatus = status
	c.CurrentPeriodEnd = timePtr(periodEnd)
	return nil
}

func (m *MockCompanyRepo) Get(id string) *model.Company {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.companies[id]
	return &cp
}

// ---- Mock UserRepository ----

type MockUserRepo struct {
	users map[string]*model.User
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo(users ...*model.User) *MockUserRepo {
	m := &MockUserRepo{users: make(map[string]*model.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

// ---- Mock PlanRepository ----

type MockPlanRepo struct {
	plans map[model.PlanCode]*model.Plan
}

var _ repository.PlanRepository = (*MockPlanRepo)(nil)

func NewMockPlanRepo(plans ...*model.Plan) *MockPlanRepo {
	m := &MockPlanRepo{plans: make(map[model.PlanCode]*model.Plan)}
	for _, p := range plans {
		m.plans[p.Code] = p
	}
	return m
}

func (m *MockPlanRepo) FindByCode(ctx context.Context, tx repository.Tx, code model.PlanCode) (*model.Plan, error) {
	p, ok := m.plans[code]
	if !ok {
		return nil, domain.ErrUnknownPlan
	}
	return p, nil
}

func (m *MockPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	var out []*model.Plan
	for _, p := range m.plans {
		out = append(out, p)
	}
	return out, nil
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockGateway struct {
	mu sync.Mutex

	InitializeFunc   func(ctx context.Context, email string, amount int64, currency, reference, callbackURL string, meta map[string]interface{}) (*adapter.InitializeResult, error)
	VerifyFunc       func(ctx context.Context, reference string) (*adapter.VerifyResult, error)
	ParseWebhookFunc func(body []byte, signature string) (*adapter.WebhookEvent, error)

	Calls struct {
		Initialize int
		Verify     int
	}
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) Initialize(ctx context.Context, email string, amount int64, currency, reference, callbackURL string, meta map[string]interface{}) (*adapter.InitializeResult, error) {
	m.mu.Lock()
	m.Calls.Initialize++
	m.mu.Unlock()
	if m.InitializeFunc != nil {
		return m.InitializeFunc(ctx, email, amount, currency, reference, callbackURL, meta)
	}
	return &adapter.InitializeResult{
		AuthorizationURL: "https://checkout.example/" + uuid.NewString(),
		AccessCode:       "ac_" + uuid.NewString()[:8],
		Reference:        reference,
	}, nil
}

func (m *MockGateway) Verify(ctx context.Context, reference string) (*adapter.VerifyResult, error) {
	m.mu.Lock()
	m.Calls.Verify++
	m.mu.Unlock()
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, reference)
	}
	return &adapter.VerifyResult{Success: true, PaidAt: time.Now()}, nil
}

func (m *MockGateway) ParseWebhook(body []byte, signature string) (*adapter.WebhookEvent, error) {
	if m.ParseWebhookFunc != nil {
		return m.ParseWebhookFunc(body, signature)
	}
	return &adapter.WebhookEvent{Kind: adapter.WebhookIgnored}, nil
}

func (m *MockGateway) VerifyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls.Verify
}

// ---- Mock TransactionManager ----

// MockTxManager runs the callback directly with a nil handle. Atomicity in
// tests comes from the mock repositories' own locking.
type MockTxManager struct{}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}
