package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"workforce-billing/internal/domain"
	"workforce-billing/internal/domain/model"
	"workforce-billing/internal/domain/ports/repository"
)

var _ repository.PlanRepository = (*PlanRepo)(nil)

type PlanRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *PlanRepo {
	return &PlanRepo{pool: pool}
}

func (r *PlanRepo) FindByCode(ctx context.Context, tx repository.Tx, code model.PlanCode) (*model.Plan, error) {
	sql := `SELECT id, code, name, price_per_seat, currency FROM plans WHERE code = $1`
	row, err := pickRow(ctx, r.pool, tx, sql, string(code))
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

func (r *PlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	sql := `SELECT id, code, name, price_per_seat, currency FROM plans ORDER BY code`
	rows, err := queryRows(ctx, r.pool, tx, sql)
	if err != nil {
		return nil, errors.Join(domain.ErrOperationFailed, err)
	}
	defer rows.Close()

	var out []*model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	return out, nil
}

func scanPlan(row pgx.Row) (*model.Plan, error) {
	var (
		p    model.Plan
		code string
	)
	if err := row.Scan(&p.ID, &code, &p.Name, &p.PricePerSeat, &p.Currency); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnknownPlan
		}
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	p.Code = model.PlanCode(code)
	return &p, nil
}
