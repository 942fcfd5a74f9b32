package repository

import (
	"context"

	"workforce-billing/internal/domain/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
}
