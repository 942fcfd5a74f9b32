package repository

import (
	"context"

	"workforce-billing/internal/domain/model"
)

type PlanRepository interface {
	FindByCode(ctx context.Context, tx Tx, code model.PlanCode) (*model.Plan, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Plan, error)
}
