package model

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusTrial    SubscriptionStatus = "trial"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Company carries the subscription state mutated by fulfillment. These fields
// are re-read at fulfillment time, never cached from initiation time: the
// true current values may have changed between request and completion.
type Company struct {
	ID   string
	Name string

	SubscriptionPlan   PlanCode
	SubscriptionStatus SubscriptionStatus
	CurrentPeriodEnd   *time.Time
	TrialEndDate       *time.Time
	EmployeeLimit      int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PeriodActive reports whether the company still has paid-for (or trial) time
// at the given instant.
func (c *Company) PeriodActive(now time.Time) bool {
	if c.CurrentPeriodEnd != nil && c.CurrentPeriodEnd.After(now) {
		return true
	}
	if c.TrialEndDate != nil && c.TrialEndDate.After(now) {
		return true
	}
	return false
}
