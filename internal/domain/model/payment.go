package model

import (
	"time"

	"workforce-billing/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // intent persisted; awaiting verification
	PaymentStatusCompleted PaymentStatus = "completed" // verified OK; fulfillment applied
	PaymentStatusFailed    PaymentStatus = "failed"    // gateway declined verification
)

// Terminal reports whether no further transition is permitted.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

type PaymentPurpose string

const (
	PurposeSubscription         PaymentPurpose = "subscription"
	PurposeEmployeeLimitUpgrade PaymentPurpose = "employee_limit_upgrade"
	PurposePlanUpgrade          PaymentPurpose = "plan_upgrade"
)

// ReferenceTag returns the short prefix embedded in payment references.
func (p PaymentPurpose) ReferenceTag() string {
	switch p {
	case PurposeSubscription:
		return "SUB"
	case PurposeEmployeeLimitUpgrade:
		return "EMP"
	case PurposePlanUpgrade:
		return "PLN"
	}
	return "PAY"
}

func PurposeFromTag(tag string) (PaymentPurpose, bool) {
	switch tag {
	case "SUB":
		return PurposeSubscription, true
	case "EMP":
		return PurposeEmployeeLimitUpgrade, true
	case "PLN":
		return PurposePlanUpgrade, true
	}
	return "", false
}

// EmployeeLimitUpgradeMetadata captures the proration inputs for a seat
// purchase so the charged amount can be audited after the fact. The seat
// count is the only field fulfillment uses; the current limit is re-read at
// fulfillment time.
type EmployeeLimitUpgradeMetadata struct {
	AdditionalEmployees int   `json:"additional_employees"`
	PricePerSeat        int64 `json:"price_per_seat"` // major units
	PeriodDays          int   `json:"period_days"`
	DaysLeft            int   `json:"days_left"`
}

// SubscriptionMetadata records the plan being bought and the seat count the
// charge was computed from.
type SubscriptionMetadata struct {
	Plan         PlanCode `json:"plan"`
	Seats        int      `json:"seats"`
	PricePerSeat int64    `json:"price_per_seat"` // major units
}

// IntentMetadata is a tagged union keyed by the intent's purpose: exactly one
// arm is populated, so fulfillment dispatch never trusts untyped fields.
type IntentMetadata struct {
	EmployeeUpgrade *EmployeeLimitUpgradeMetadata `json:"employee_upgrade,omitempty"`
	Subscription    *SubscriptionMetadata         `json:"subscription,omitempty"`
}

// Validate checks that the populated arm matches the purpose.
func (m IntentMetadata) Validate(purpose PaymentPurpose) error {
	switch purpose {
	case PurposeEmployeeLimitUpgrade:
		if m.EmployeeUpgrade == nil || m.Subscription != nil {
			return domain.ErrBadMetadata
		}
	case PurposeSubscription, PurposePlanUpgrade:
		if m.Subscription == nil || m.EmployeeUpgrade != nil {
			return domain.ErrBadMetadata
		}
	default:
		return domain.ErrUnknownPurpose
	}
	return nil
}

// PaymentIntent is the durable record of one attempt to convert a requested
// upgrade into a paid entitlement change. Rows are never deleted; they form
// an append-only audit trail of billing events.
type PaymentIntent struct {
	ID        string // ULID
	CompanyID string
	UserID    string

	// Reference is generated once at initiation and never regenerated. It is
	// globally unique and embeds purpose, company id, timestamp and a random
	// suffix for operational debugging.
	Reference string

	Amount   int64 // minor currency units
	Currency string
	Purpose  PaymentPurpose
	Status   PaymentStatus

	Provider         string
	AuthorizationURL string
	AccessCode       string

	Metadata IntentMetadata

	CreatedAt  time.Time
	VerifiedAt *time.Time
	PaidAt     *time.Time
}
