//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"workforce-billing/internal/domain"
	"workforce-billing/internal/domain/model"
	"workforce-billing/internal/domain/ports/adapter"
	"workforce-billing/internal/usecase"
)

type fixture struct {
	payments  *MockPaymentRepo
	companies *MockCompanyRepo
	users     *MockUserRepo
	plans     *MockPlanRepo
	gateway   *MockGateway
	uc        usecase.PaymentUseCase
}

const (
	testCompanyID = "c0a80101-0000-4000-8000-000000000001"
	testUserID    = "u0a80101-0000-4000-8000-000000000001"
)

func newFixture(company *model.Company) *fixture {
	f := &fixture{
		payments: NewMockPaymentRepo(),
		companies: NewMockCompanyRepo(
			company,
		),
		users: NewMockUserRepo(&model.User{
			ID:        testUserID,
			CompanyID: testCompanyID,
			Email:     "owner@acme.test",
			Role:      model.RoleOwner,
		}),
		plans: NewMockPlanRepo(
			&model.Plan{ID: "p1", Code: model.PlanSilverMonthly, Name: "Silver", PricePerSeat: 1000, Currency: "NGN"},
			&model.Plan{ID: "p2", Code: model.PlanGoldMonthly, Name: "Gold", PricePerSeat: 2000, Currency: "NGN"},
			&model.Plan{ID: "p3", Code: model.PlanGoldYearly, Name: "Gold Yearly", PricePerSeat: 20000, Currency: "NGN"},
		),
		gateway: &MockGateway{},
	}
	f.uc = usecase.NewPaymentUseCase(
		f.payments, f.companies, f.users, f.plans,
		f.gateway, &MockTxManager{}, "https://app.acme.test/billing/callback", newTestLogger(),
	)
	return f
}

func activeCompany(periodEnd time.Time) *model.Company {
	return &model.Company{
		ID:                 testCompanyID,
		Name:               "Acme",
		SubscriptionPlan:   model.PlanSilverMonthly,
		SubscriptionStatus: model.SubscriptionStatusActive,
		CurrentPeriodEnd:   timePtr(periodEnd),
		EmployeeLimit:      10,
	}
}

func TestInitiateEmployeeLimitUpgrade(t *testing.T) {
	ctx := context.Background()

	t.Run("prorates by days left in period", func(t *testing.T) {
		// Arrange: 15 of 30 days left, 5 seats at 1000 major units each.
		f := newFixture(activeCompany(time.Now().Add(15 * 24 * time.Hour)))

		// Act
		p, err := f.uc.InitiateEmployeeLimitUpgrade(ctx, testUserID, 5)

		// Assert
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Amount != 250000 {
			t.Fatalf("amount = %d, want 250000", p.Amount)
		}
		if p.Status != model.PaymentStatusPending {
			t.Fatalf("status = %s, want pending", p.Status)
		}
		if !strings.HasPrefix(p.Reference, "EMP-") {
			t.Fatalf("reference %q lacks EMP tag", p.Reference)
		}
		meta := p.Metadata.EmployeeUpgrade
		if meta == nil || meta.AdditionalEmployees != 5 || meta.PeriodDays != 30 {
			t.Fatalf("metadata = %+v", p.Metadata)
		}
	})

	t.Run("no active period charges full price", func(t *testing.T) {
		f := newFixture(activeCompany(time.Now().Add(-24 * time.Hour)))

		p, err := f.uc.InitiateEmployeeLimitUpgrade(ctx, testUserID, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Amount != 500000 {
			t.Fatalf("amount = %d, want 500000", p.Amount)
		}
	})

	t.Run("trial company pays full price", func(t *testing.T) {
		// A trial has no billing period end to prorate against: seats must
		// never come out free just because the trial is still running.
		c := activeCompany(time.Now())
		c.CurrentPeriodEnd = nil
		c.TrialEndDate = timePtr(time.Now().Add(10 * 24 * time.Hour))
		c.SubscriptionStatus = model.SubscriptionStatusTrial
		f := newFixture(c)

		p, err := f.uc.InitiateEmployeeLimitUpgrade(ctx, testUserID, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Amount != 500000 {
			t.Fatalf("amount = %d, want 500000 (full price during trial)", p.Amount)
		}
	})

	t.Run("rejects seat counts outside 1..100", func(t *testing.T) {
		f := newFixture(activeCompany(time.Now().Add(15 * 24 * time.Hour)))

		for _, n := range []int{0, -3, 101} {
			if _, err := f.uc.InitiateEmployeeLimitUpgrade(ctx, testUserID, n); !errors.Is(err, domain.ErrSeatLimit) {
				t.Fatalf("n=%d: err = %v, want ErrSeatLimit", n, err)
			}
		}
		if f.gateway.Calls.Initialize != 0 {
			t.Fatalf("gateway called %d times for invalid input", f.gateway.Calls.Initialize)
		}
	})

	t.Run("gateway failure leaves no intent behind", func(t *testing.T) {
		f := newFixture(activeCompany(time.Now().Add(15 * 24 * time.Hour)))
		f.gateway.InitializeFunc = func(ctx context.Context, email string, amount int64, currency, reference, callbackURL string, meta map[string]interface{}) (*adapter.InitializeResult, error) {
			return nil, domain.ErrProviderUnreachable
		}

		_, err := f.uc.InitiateEmployeeLimitUpgrade(ctx, testUserID, 5)
		if !errors.Is(err, domain.ErrProviderUnreachable) {
			t.Fatalf("err = %v, want ErrProviderUnreachable", err)
		}
		if f.payments.Count() != 0 {
			t.Fatalf("intent rows = %d, want 0", f.payments.Count())
		}
	})

	t.Run("employee role may not initiate", func(t *testing.T) {
		f := newFixture(activeCompany(time.Now().Add(15 * 24 * time.Hour)))
		f.users.users["emp1"] = &model.User{ID: "emp1", CompanyID: testCompanyID, Email: "e@acme.test", Role: model.RoleEmployee}

		if _, err := f.uc.InitiateEmployeeLimitUpgrade(ctx, "emp1", 5); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("err = %v, want ErrForbidden", err)
		}
	})
}

func TestInitiateSubscription(t *testing.T) {
	ctx := context.Background()

	t.Run("downgrade mid-period is rejected before the gateway", func(t *testing.T) {
		c := activeCompany(time.Now().Add(10 * 24 * time.Hour))
		c.SubscriptionPlan = model.PlanGoldMonthly
		f := newFixture(c)

		_, err := f.uc.InitiateSubscription(ctx, testUserID, model.PlanSilverMonthly)
		if !errors.Is(err, domain.ErrPlanDowngrade) {
			t.Fatalf("err = %v, want ErrPlanDowngrade", err)
		}
		if f.gateway.Calls.Initialize != 0 {
			t.Fatalf("gateway called on rejected downgrade")
		}
		if f.payments.Count() != 0 {
			t.Fatalf("intent rows = %d, want 0", f.payments.Count())
		}
	})

	t.Run("downgrade after expiry is allowed", func(t *testing.T) {
		c := activeCompany(time.Now().Add(-24 * time.Hour))
		c.SubscriptionPlan = model.PlanGoldMonthly
		f := newFixture(c)

		p, err := f.uc.InitiateSubscription(ctx, testUserID, model.PlanSilverMonthly)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Purpose != model.PurposePlanUpgrade {
			t.Fatalf("purpose = %s, want plan_upgrade", p.Purpose)
		}
	})

	t.Run("amount covers all current seats", func(t *testing.T) {
		f := newFixture(activeCompany(time.Now().Add(10 * 24 * time.Hour)))

		p, err := f.uc.InitiateSubscription(ctx, testUserID, model.PlanGoldMonthly)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// 10 seats x 2000 major units x 100
		if p.Amount != 2000000 {
			t.Fatalf("amount = %d, want 2000000", p.Amount)
		}
		if !strings.HasPrefix(p.Reference, "PLN-") {
			t.Fatalf("reference %q lacks PLN tag", p.Reference)
		}
	})

	t.Run("unknown plan", func(t *testing.T) {
		f := newFixture(activeCompany(time.Now().Add(10 * 24 * time.Hour)))

		if _, err := f.uc.InitiateSubscription(ctx, testUserID, model.PlanCode("platinum_weekly")); !errors.Is(err, domain.ErrUnknownPlan) {
			t.Fatalf("err = %v, want ErrUnknownPlan", err)
		}
	})
}

func TestFulfill(t *testing.T) {
	ctx := context.Background()

	t.Run("seat upgrade applies exactly once", func(t *testing.T) {
		f := newFixture(activeCompany(time.Now().Add(15 * 24 * time.Hour)))
		p, err := f.uc.InitiateEmployeeLimitUpgrade(ctx, testUserID, 5)
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}

		// First fulfillment applies the effect.
		res, err := f.uc.Fulfill(ctx, p.Reference)
		if err != nil {
			t.Fatalf("fulfill: %v", err)
		}
		if res.AlreadyProcessed {
			t.Fatalf("first fulfillment reported AlreadyProcessed")
		}
		if got := f.companies.Get(testCompanyID).EmployeeLimit; got != 15 {
			t.Fatalf("employee limit = %d, want 15", got)
		}

		// Every repeat is a no-op.
		for i := 0; i < 3; i++ {
			res, err := f.uc.Fulfill(ctx, p.Reference)
			if err != nil {
				t.Fatalf("repeat fulfill: %v", err)
			}
			if !res.AlreadyProcessed {
				t.Fatalf("repeat fulfillment applied effect again")
			}
		}
		if got := f.companies.Get(testCompanyID).EmployeeLimit; got != 15 {
			t.Fatalf("employee limit after repeats = %d, want 15", got)
		}
	})

	t.Run("concurrent poll and webhook produce one effect", func(t *testing.T) {
		f := newFixture(activeCompany(time.Now().Add(15 * 24 * time.Hour)))
		p, err := f.uc.InitiateEmployeeLimitUpgrade(ctx, testUserID, 5)
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}

		const racers = 8
		results := make([]*usecase.FulfillResult, racers)
		errs := make([]error, racers)
		var wg sync.WaitGroup
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = f.uc.Fulfill(ctx, p.Reference)
			}(i)
		}
		wg.Wait()

		winners := 0
		for i := 0; i < racers; i++ {
			if errs[i] != nil {
				t.Fatalf("racer %d: %v", i, errs[i])
			}
			if !results[i].AlreadyProcessed {
				winners++
			}
			if results[i].Intent.Status != model.PaymentStatusCompleted {
				t.Fatalf("racer %d saw status %s", i, results[i].Intent.Status)
			}
		}
		if winners != 1 {
			t.Fatalf("winners = %d, want exactly 1", winners)
		}
		if got := f.companies.Get(testCompanyID).EmployeeLimit; got != 15 {
			t.Fatalf("employee limit = %d, want 15 (single application)", got)
		}
	})

	t.Run("declined verification marks intent failed", func(t *testing.T) {
		f := newFixture(activeCompany(time.Now().Add(15 * 24 * time.Hour)))
		p, err := f.uc.InitiateEmployeeLimitUpgrade(ctx, testUserID, 5)
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		f.gateway.VerifyFunc = func(ctx context.Context, reference string) (*adapter.VerifyResult, error) {
			return &adapter.VerifyResult{Success: false}, nil
		}

		_, err = f.uc.Fulfill(ctx, p.Reference)
		if !errors.Is(err, domain.ErrProviderDeclined) {
			t.Fatalf("err = %v, want ErrProviderDeclined", err)
		}
		cur, _ := f.payments.FindByReference(ctx, nil, p.Reference)
		if cur.Status != model.PaymentStatusFailed {
			t.Fatalf("status = %s, want failed", cur.Status)
		}
		if got := f.companies.Get(testCompanyID).EmployeeLimit; got != 10 {
			t.Fatalf("employee limit = %d, want 10 (no effect)", got)
		}
	})

	t.Run("unreachable provider is retried and leaves intent pending", func(t *testing.T) {
		f := newFixture(activeCompany(time.Now().Add(15 * 24 * time.Hour)))
		p, err := f.uc.InitiateEmployeeLimitUpgrade(ctx, testUserID, 5)
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		f.gateway.VerifyFunc = func(ctx context.Context, reference string) (*adapter.VerifyResult, error) {
			return nil, domain.ErrProviderUnreachable
		}

		_, err = f.uc.Fulfill(ctx, p.Reference)
		if !errors.Is(err, domain.ErrProviderUnreachable) {
			t.Fatalf("err = %v, want ErrProviderUnreachable", err)
		}
		if got := f.gateway.VerifyCalls(); got != 3 {
			t.Fatalf("verify attempts = %d, want 3", got)
		}
		cur, _ := f.payments.FindByReference(ctx, nil, p.Reference)
		if cur.Status != model.PaymentStatusPending {
			t.Fatalf("status = %s, want pending (reconciler will retry)", cur.Status)
		}
	})

	t.Run("unknown reference", func(t *testing.T) {
		f := newFixture(activeCompany(time.Now().Add(15 * 24 * time.Hour)))
		if _, err := f.uc.Fulfill(ctx, "EMP-deadbeef-1-abc123"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestPeriodExtension(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh subscription extends from now", func(t *testing.T) {
		c := activeCompany(time.Now().Add(-24 * time.Hour)) // lapsed
		f := newFixture(c)
		p, err := f.uc.InitiateSubscription(ctx, testUserID, model.PlanGoldMonthly)
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}

		if _, err := f.uc.Fulfill(ctx, p.Reference); err != nil {
			t.Fatalf("fulfill: %v", err)
		}

		got := f.companies.Get(testCompanyID)
		want := time.Now().AddDate(0, 0, 30)
		if got.CurrentPeriodEnd == nil || got.CurrentPeriodEnd.Sub(want).Abs() > time.Minute {
			t.Fatalf("period end = %v, want ~%v", got.CurrentPeriodEnd, want)
		}
		if got.SubscriptionPlan != model.PlanGoldMonthly {
			t.Fatalf("plan = %s, want gold_monthly", got.SubscriptionPlan)
		}
		if got.SubscriptionStatus != model.SubscriptionStatusActive {
			t.Fatalf("status = %s, want active", got.SubscriptionStatus)
		}
	})

	t.Run("early renewal keeps paid-for time", func(t *testing.T) {
		end := time.Now().Add(10 * 24 * time.Hour)
		f := newFixture(activeCompany(end))
		p, err := f.uc.InitiateSubscription(ctx, testUserID, model.PlanSilverMonthly)
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}

		if _, err := f.uc.Fulfill(ctx, p.Reference); err != nil {
			t.Fatalf("fulfill: %v", err)
		}

		got := f.companies.Get(testCompanyID)
		want := end.AddDate(0, 0, 30)
		if got.CurrentPeriodEnd == nil || got.CurrentPeriodEnd.Sub(want).Abs() > time.Minute {
			t.Fatalf("period end = %v, want ~%v (anchored on old end)", got.CurrentPeriodEnd, want)
		}
	})

	t.Run("trial end anchors when later than period end", func(t *testing.T) {
		trialEnd := time.Now().Add(20 * 24 * time.Hour)
		c := activeCompany(time.Now().Add(5 * 24 * time.Hour))
		c.SubscriptionStatus = model.SubscriptionStatusTrial
		c.TrialEndDate = timePtr(trialEnd)
		f := newFixture(c)
		p, err := f.uc.InitiateSubscription(ctx, testUserID, model.PlanGoldYearly)
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}

		if _, err := f.uc.Fulfill(ctx, p.Reference); err != nil {
			t.Fatalf("fulfill: %v", err)
		}

		got := f.companies.Get(testCompanyID)
		want := trialEnd.AddDate(0, 0, 365)
		if got.CurrentPeriodEnd == nil || got.CurrentPeriodEnd.Sub(want).Abs() > time.Minute {
			t.Fatalf("period end = %v, want ~%v (anchored on trial end)", got.CurrentPeriodEnd, want)
		}
	})
}

func TestVerifyPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("cross-company reference is forbidden", func(t *testing.T) {
		f := newFixture(activeCompany(time.Now().Add(15 * 24 * time.Hour)))
		p, err := f.uc.InitiateEmployeeLimitUpgrade(ctx, testUserID, 5)
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}

		if _, err := f.uc.VerifyPayment(ctx, "some-other-company", p.Reference); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("err = %v, want ErrForbidden", err)
		}
		if got := f.companies.Get(testCompanyID).EmployeeLimit; got != 10 {
			t.Fatalf("employee limit = %d, effect applied for foreign caller", got)
		}
	})

	t.Run("declined verification still returns intent state", func(t *testing.T) {
		f := newFixture(activeCompany(time.Now().Add(15 * 24 * time.Hour)))
		p, err := f.uc.InitiateEmployeeLimitUpgrade(ctx, testUserID, 5)
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		f.gateway.VerifyFunc = func(ctx context.Context, reference string) (*adapter.VerifyResult, error) {
			return &adapter.VerifyResult{Success: false}, nil
		}

		got, err := f.uc.VerifyPayment(ctx, testCompanyID, p.Reference)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Status != model.PaymentStatusFailed {
			t.Fatalf("status = %s, want failed", got.Status)
		}
	})
}
