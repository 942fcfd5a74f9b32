package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"workforce-billing/internal/domain"
	"workforce-billing/internal/domain/model"
	"workforce-billing/internal/domain/ports/repository"
)

var _ repository.CompanyRepository = (*CompanyRepo)(nil)

type CompanyRepo struct {
	pool *pgxpool.Pool
}

func NewCompanyRepo(pool *pgxpool.Pool) *CompanyRepo {
	return &CompanyRepo{pool: pool}
}

func (r *CompanyRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Company, error) {
	sql := `
		SELECT id, name, subscription_plan, subscription_status,
		       current_period_end, trial_end_date, employee_limit,
		       created_at, updated_at
		FROM companies WHERE id = $1`
	row, err := pickRow(ctx, r.pool, tx, sql, id)
	if err != nil {
		return nil, err
	}
	var (
		c      model.Company
		plan   string
		status string
	)
	err = row.Scan(&c.ID, &c.Name, &plan, &status,
		&c.CurrentPeriodEnd, &c.TrialEndDate, &c.EmployeeLimit,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	c.SubscriptionPlan = model.PlanCode(plan)
	c.SubscriptionStatus = model.SubscriptionStatus(status)
	return &c, nil
}

// IncrementEmployeeLimit computes the new limit from the row's current value
// in a single UPDATE, so concurrent fulfillments never lose an increment.
func (r *CompanyRepo) IncrementEmployeeLimit(ctx context.Context, tx repository.Tx, id string, delta int) (int, error) {
	sql := `
		UPDATE companies
		SET employee_limit = employee_limit + $2, updated_at = now()
		WHERE id = $1
		RETURNING employee_limit`
	row, err := pickRow(ctx, r.pool, tx, sql, id, delta)
	if err != nil {
		return 0, err
	}
	var newLimit int
	if err := row.Scan(&newLimit); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, errors.Join(domain.ErrOperationFailed, err)
	}
	return newLimit, nil
}

func (r *CompanyRepo) UpdateSubscription(ctx context.Context, tx repository.Tx, id string, plan model.PlanCode, status model.SubscriptionStatus, periodEnd time.Time) error {
	sql := `
		UPDATE companies
		SET subscription_plan = $2, subscription_status = $3,
		    current_period_end = $4, updated_at = now()
		WHERE id = $1`
	tag, err := execSQL(ctx, r.pool, tx, sql, id, string(plan), string(status), periodEnd)
	if err != nil {
		return errors.Join(domain.ErrOperationFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
