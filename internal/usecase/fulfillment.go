// File: internal/usecase/fulfillment.go
package usecase

import (
	"context"
	"time"

	"workforce-billing/internal/domain"
	"workforce-billing/internal/domain/model"
	"workforce-billing/internal/domain/ports/repository"
)

// applyFulfillment dispatches the intent's business effect by purpose. It
// runs inside the transaction that won the pending->completed transition.
func (u *paymentUC) applyFulfillment(ctx context.Context, tx repository.Tx, p *model.PaymentIntent) error {
	if err := p.Metadata.Validate(p.Purpose); err != nil {
		return err
	}
	switch p.Purpose {
	case model.PurposeEmployeeLimitUpgrade:
		return u.applySeatUpgrade(ctx, tx, p)
	case model.PurposeSubscription, model.PurposePlanUpgrade:
		return u.applyPeriodExtension(ctx, tx, p)
	}
	return domain.ErrUnknownPurpose
}

// applySeatUpgrade adds seats on top of the company's limit as it stands at
// fulfillment time. The increment happens in a single SQL statement, never
// from a limit captured at initiation: an overlapping upgrade may have
// changed it in between.
func (u *paymentUC) applySeatUpgrade(ctx context.Context, tx repository.Tx, p *model.PaymentIntent) error {
	newLimit, err := u.companies.IncrementEmployeeLimit(ctx, tx, p.CompanyID, p.Metadata.EmployeeUpgrade.AdditionalEmployees)
	if err != nil {
		return err
	}
	u.log.Info().
		Str("reference", p.Reference).
		Str("company_id", p.CompanyID).
		Int("added", p.Metadata.EmployeeUpgrade.AdditionalEmployees).
		Int("employee_limit", newLimit).
		Msg("employee limit raised")
	return nil
}

// applyPeriodExtension extends the subscription period. The anchor is the
// latest of the existing period end, the trial end and now: renewing before
// expiry keeps already-paid-for time, and a lapsed period never extends from
// a stale date.
func (u *paymentUC) applyPeriodExtension(ctx context.Context, tx repository.Tx, p *model.PaymentIntent) error {
	company, err := u.companies.FindByID(ctx, tx, p.CompanyID)
	if err != nil {
		return err
	}
	if company == nil {
		return domain.ErrNotFound
	}

	meta := p.Metadata.Subscription
	now := time.Now()
	anchor := extensionAnchor(company.CurrentPeriodEnd, company.TrialEndDate, now)
	newEnd := anchor.AddDate(0, 0, meta.Plan.PeriodDays())

	return u.companies.UpdateSubscription(ctx, tx, company.ID, meta.Plan, model.SubscriptionStatusActive, newEnd)
}

func extensionAnchor(periodEnd, trialEnd *time.Time, now time.Time) time.Time {
	anchor := now
	if periodEnd != nil && periodEnd.After(anchor) {
		anchor = *periodEnd
	}
	if trialEnd != nil && trialEnd.After(anchor) {
		anchor = *trialEnd
	}
	return anchor
}
