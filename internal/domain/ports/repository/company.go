package repository

import (
	"context"
	"time"

	"workforce-billing/internal/domain/model"
)

type CompanyRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Company, error)

	// IncrementEmployeeLimit adds delta to the company's current limit in a
	// single statement, so the new limit is always computed from the value at
	// fulfillment time, and returns the new limit.
	IncrementEmployeeLimit(ctx context.Context, tx Tx, id string, delta int) (int, error)

	// UpdateSubscription rewrites the company's plan, status and period end.
	UpdateSubscription(ctx context.Context, tx Tx, id string, plan model.PlanCode, status model.SubscriptionStatus, periodEnd time.Time) error
}
