package model

import "workforce-billing/internal/domain"

type PlanCode string

const (
	PlanSilverMonthly PlanCode = "silver_monthly"
	PlanSilverYearly  PlanCode = "silver_yearly"
	PlanGoldMonthly   PlanCode = "gold_monthly"
	PlanGoldYearly    PlanCode = "gold_yearly"
)

func ParsePlanCode(s string) (PlanCode, error) {
	switch PlanCode(s) {
	case PlanSilverMonthly, PlanSilverYearly, PlanGoldMonthly, PlanGoldYearly:
		return PlanCode(s), nil
	}
	return "", domain.ErrUnknownPlan
}

// Tier orders plans for the downgrade guard: silver < gold.
func (c PlanCode) Tier() int {
	switch c {
	case PlanSilverMonthly, PlanSilverYearly:
		return 1
	case PlanGoldMonthly, PlanGoldYearly:
		return 2
	}
	return 0
}

// PeriodDays is the billing period length granted by one payment.
func (c PlanCode) PeriodDays() int {
	switch c {
	case PlanSilverYearly, PlanGoldYearly:
		return 365
	default:
		return 30
	}
}

// Plan is a priced offering. PricePerSeat is stored in major currency units;
// charges are converted to minor units when an intent is created.
type Plan struct {
	ID           string
	Code         PlanCode
	Name         string
	PricePerSeat int64
	Currency     string
}
