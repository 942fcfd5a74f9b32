// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"workforce-billing/internal/domain"
	"workforce-billing/internal/domain/model"
	"workforce-billing/internal/domain/ports/adapter"
	"workforce-billing/internal/domain/ports/repository"
	"workforce-billing/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// FulfillResult reports the outcome of a fulfillment attempt. AlreadyProcessed
// means another caller won the pending->terminal transition (or the intent was
// terminal to begin with) and no effect was applied by this call.
type FulfillResult struct {
	Intent           *model.PaymentIntent
	AlreadyProcessed bool
}

type PaymentUseCase interface {
	// InitiateEmployeeLimitUpgrade creates a prorated seat-purchase intent.
	// The gateway is called before anything is persisted: a gateway failure
	// leaves no intent row behind.
	InitiateEmployeeLimitUpgrade(ctx context.Context, userID string, additionalEmployees int) (*model.PaymentIntent, error)

	// InitiateSubscription creates a subscription/plan-upgrade intent. A
	// mid-period downgrade is rejected before the gateway is ever called.
	InitiateSubscription(ctx context.Context, userID string, plan model.PlanCode) (*model.PaymentIntent, error)

	// Fulfill verifies the referenced intent with the gateway and applies its
	// business effect exactly once. Safe to call concurrently and repeatedly
	// for the same reference; losers observe AlreadyProcessed.
	Fulfill(ctx context.Context, reference string) (*FulfillResult, error)

	// VerifyPayment is the client-poll entry point: it enforces that the
	// intent belongs to the caller's company, then runs Fulfill.
	VerifyPayment(ctx context.Context, callerCompanyID, reference string) (*model.PaymentIntent, error)

	ListByCompany(ctx context.Context, companyID string) ([]*model.PaymentIntent, error)
	Prices(ctx context.Context) ([]*model.Plan, error)
}

type paymentUC struct {
	payments  repository.PaymentIntentRepository
	companies repository.CompanyRepository
	users     repository.UserRepository
	plans     repository.PlanRepository
	gateway   adapter.PaymentGateway
	tm        repository.TransactionManager

	callbackURL string
	log         *zerolog.Logger

	// transport-failure retry policy for Verify
	verifyAttempts int
	verifyBackoff  time.Duration
}

func NewPaymentUseCase(
	payments repository.PaymentIntentRepository,
	companies repository.CompanyRepository,
	users repository.UserRepository,
	plans repository.PlanRepository,
	gateway adapter.PaymentGateway,
	tm repository.TransactionManager,
	callbackURL string,
	logger *zerolog.Logger,
) *paymentUC {
	return &paymentUC{
		payments:       payments,
		companies:      companies,
		users:          users,
		plans:          plans,
		gateway:        gateway,
		tm:             tm,
		callbackURL:    callbackURL,
		log:            logger,
		verifyAttempts: 3,
		verifyBackoff:  500 * time.Millisecond,
	}
}

func (u *paymentUC) InitiateEmployeeLimitUpgrade(ctx context.Context, userID string, additionalEmployees int) (*model.PaymentIntent, error) {
	if additionalEmployees < 1 || additionalEmployees > 100 {
		return nil, domain.ErrSeatLimit
	}
	user, company, err := u.loadBillingActor(ctx, userID)
	if err != nil {
		return nil, err
	}

	plan, err := u.plans.FindByCode(ctx, nil, company.SubscriptionPlan)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	periodDays := company.SubscriptionPlan.PeriodDays()
	daysLeft := DaysLeftInPeriod(company.CurrentPeriodEnd, now)
	// Proration discounts only against a paid billing period. A company with
	// no period end (still in trial) or a lapsed one pays the full seat price.
	if company.CurrentPeriodEnd == nil || !company.CurrentPeriodEnd.After(now) {
		daysLeft = periodDays
	}
	amount := ProratedSeatAmount(additionalEmployees, plan.PricePerSeat, daysLeft, periodDays)

	meta := model.IntentMetadata{EmployeeUpgrade: &model.EmployeeLimitUpgradeMetadata{
		AdditionalEmployees: additionalEmployees,
		PricePerSeat:        plan.PricePerSeat,
		PeriodDays:          periodDays,
		DaysLeft:            daysLeft,
	}}
	return u.initiate(ctx, user, company, model.PurposeEmployeeLimitUpgrade, amount, plan.Currency, meta)
}

func (u *paymentUC) InitiateSubscription(ctx context.Context, userID string, planCode model.PlanCode) (*model.PaymentIntent, error) {
	user, company, err := u.loadBillingActor(ctx, userID)
	if err != nil {
		return nil, err
	}

	requested, err := u.plans.FindByCode(ctx, nil, planCode)
	if err != nil {
		return nil, err
	}

	// Downgrade guard: validation step, not a fulfillment-time check. No
	// intent is created and the gateway is never called.
	now := time.Now()
	if company.SubscriptionPlan.Tier() > planCode.Tier() && company.PeriodActive(now) {
		return nil, domain.ErrPlanDowngrade
	}

	seats := company.EmployeeLimit
	if seats < 1 {
		seats = 1
	}
	amount := int64(seats) * requested.PricePerSeat * 100

	purpose := model.PurposeSubscription
	if company.SubscriptionPlan != "" && company.SubscriptionPlan != planCode {
		purpose = model.PurposePlanUpgrade
	}
	meta := model.IntentMetadata{Subscription: &model.SubscriptionMetadata{
		Plan:         planCode,
		Seats:        seats,
		PricePerSeat: requested.PricePerSeat,
	}}
	return u.initiate(ctx, user, company, purpose, amount, requested.Currency, meta)
}

// initiate calls the gateway first and persists the intent only once the
// gateway has confirmed acceptance, so no pending row ever lacks a usable
// redirect target.
func (u *paymentUC) initiate(ctx context.Context, user *model.User, company *model.Company, purpose model.PaymentPurpose, amount int64, currency string, meta model.IntentMetadata) (*model.PaymentIntent, error) {
	if err := meta.Validate(purpose); err != nil {
		return nil, err
	}

	reference := NewReference(purpose, company.ID)
	res, err := u.gateway.Initialize(ctx, user.Email, amount, currency, reference, u.callbackURL, map[string]interface{}{
		"company_id": company.ID,
		"purpose":    string(purpose),
	})
	if err != nil {
		u.log.Error().Err(err).Str("reference", reference).Str("company_id", company.ID).Msg("gateway initialize failed")
		return nil, err
	}

	now := time.Now()
	p := &model.PaymentIntent{
		ID:               ulid.Make().String(),
		CompanyID:        company.ID,
		UserID:           user.ID,
		Reference:        reference,
		Amount:           amount,
		Currency:         currency,
		Purpose:          purpose,
		Status:           model.PaymentStatusPending,
		Provider:         u.gateway.Name(),
		AuthorizationURL: res.AuthorizationURL,
		AccessCode:       res.AccessCode,
		Metadata:         meta,
		CreatedAt:        now,
	}
	if err := u.payments.Save(ctx, nil, p); err != nil {
		return nil, err
	}
	metrics.IncPayment(string(model.PaymentStatusPending))
	u.log.Info().Str("reference", reference).Str("purpose", string(purpose)).Int64("amount", amount).Msg("payment initiated")
	return p, nil
}

func (u *paymentUC) loadBillingActor(ctx context.Context, userID string) (*model.User, *model.Company, error) {
	user, err := u.users.FindByID(ctx, nil, userID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, domain.ErrNotFound
	}
	if !user.Role.CanManageBilling() {
		return nil, nil, domain.ErrForbidden
	}
	company, err := u.companies.FindByID(ctx, nil, user.CompanyID)
	if err != nil {
		return nil, nil, err
	}
	if company == nil {
		return nil, nil, domain.ErrNotFound
	}
	return user, company, nil
}

func (u *paymentUC) VerifyPayment(ctx context.Context, callerCompanyID, reference string) (*model.PaymentIntent, error) {
	p, err := u.payments.FindByReference(ctx, nil, reference)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	if p.CompanyID != callerCompanyID {
		return nil, domain.ErrForbidden
	}
	res, err := u.Fulfill(ctx, reference)
	if err != nil {
		// A declined verification is still an answer the caller needs: the
		// intent is now failed; report its state rather than a 5xx.
		if errors.Is(err, domain.ErrProviderDeclined) {
			if cur, ferr := u.payments.FindByReference(ctx, nil, reference); ferr == nil && cur != nil {
				return cur, nil
			}
		}
		return nil, err
	}
	return res.Intent, nil
}

// Fulfill drives the race-safe pending->terminal transition and applies the
// purpose's business effect exactly once. Both the client poll and the
// webhook delivery enter here, so the concurrency argument holds regardless
// of which trigger wins.
func (u *paymentUC) Fulfill(ctx context.Context, reference string) (*FulfillResult, error) {
	started := time.Now()
	res, err := u.verifyAndTransition(ctx, reference)
	metrics.ObserveVerifyDuration(time.Since(started), err == nil)
	return res, err
}

func (u *paymentUC) verifyAndTransition(ctx context.Context, reference string) (*FulfillResult, error) {
	p, err := u.payments.FindByReference(ctx, nil, reference)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}

	// First idempotency guard: a terminal intent short-circuits before any
	// gateway call.
	if p.Status.Terminal() {
		metrics.IncFulfillment(string(p.Purpose), "already_processed")
		return &FulfillResult{Intent: p, AlreadyProcessed: true}, nil
	}

	vr, err := u.verifyWithRetry(ctx, reference)
	if err != nil {
		if errors.Is(err, domain.ErrProviderDeclined) {
			u.markFailed(ctx, p)
		}
		// Transport failures leave the intent pending; the reconciler will
		// re-drive it once the provider is reachable again.
		return nil, err
	}
	if !vr.Success {
		u.markFailed(ctx, p)
		return nil, domain.ErrProviderDeclined
	}

	now := time.Now()
	paidAt := vr.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}

	// Second guard: conditional update scoped per reference. Zero affected
	// rows means a concurrent caller already won; exactly one row means this
	// caller owns fulfillment. The business effect runs in the same
	// transaction, so a failed effect rolls the transition back.
	var alreadyProcessed bool
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		won, err := u.payments.UpdateStatusIfPending(ctx, tx, p.ID, model.PaymentStatusCompleted, &now, &paidAt)
		if err != nil {
			return err
		}
		if !won {
			alreadyProcessed = true
			return nil
		}
		return u.applyFulfillment(ctx, tx, p)
	})
	if err != nil {
		metrics.IncFulfillment(string(p.Purpose), "error")
		u.log.Error().Err(err).Str("reference", reference).Msg("fulfillment transaction failed")
		return nil, err
	}

	if alreadyProcessed {
		metrics.IncFulfillment(string(p.Purpose), "already_processed")
		cur, err := u.payments.FindByReference(ctx, nil, reference)
		if err != nil {
			return nil, err
		}
		return &FulfillResult{Intent: cur, AlreadyProcessed: true}, nil
	}

	p.Status = model.PaymentStatusCompleted
	p.VerifiedAt = &now
	p.PaidAt = &paidAt
	metrics.IncPayment(string(model.PaymentStatusCompleted))
	metrics.AddPaymentRevenue(p.Currency, p.Amount)
	metrics.IncFulfillment(string(p.Purpose), "applied")
	u.log.Info().Str("reference", reference).Str("purpose", string(p.Purpose)).Msg("payment fulfilled")
	return &FulfillResult{Intent: p}, nil
}

// verifyWithRetry retries only transport failures, with doubling backoff. A
// decline is never retried: the provider answered.
func (u *paymentUC) verifyWithRetry(ctx context.Context, reference string) (*adapter.VerifyResult, error) {
	backoff := u.verifyBackoff
	var lastErr error
	for attempt := 1; attempt <= u.verifyAttempts; attempt++ {
		vr, err := u.gateway.Verify(ctx, reference)
		if err == nil {
			return vr, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrProviderUnreachable) {
			return nil, err
		}
		u.log.Warn().Err(err).Str("reference", reference).Int("attempt", attempt).Msg("gateway verify unreachable")
		if attempt == u.verifyAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}

// markFailed moves pending->failed through the same CAS so the transition
// stays monotonic even when racing a successful completion.
func (u *paymentUC) markFailed(ctx context.Context, p *model.PaymentIntent) {
	now := time.Now()
	won, err := u.payments.UpdateStatusIfPending(ctx, nil, p.ID, model.PaymentStatusFailed, &now, nil)
	if err != nil {
		u.log.Error().Err(err).Str("reference", p.Reference).Msg("mark failed error")
		return
	}
	if won {
		p.Status = model.PaymentStatusFailed
		p.VerifiedAt = &now
		metrics.IncPayment(string(model.PaymentStatusFailed))
		u.log.Info().Str("reference", p.Reference).Msg("payment verification declined")
	}
}

func (u *paymentUC) ListByCompany(ctx context.Context, companyID string) ([]*model.PaymentIntent, error) {
	return u.payments.ListByCompany(ctx, nil, companyID)
}

func (u *paymentUC) Prices(ctx context.Context) ([]*model.Plan, error) {
	return u.plans.ListAll(ctx, nil)
}
