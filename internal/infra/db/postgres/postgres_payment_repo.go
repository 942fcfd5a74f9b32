package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"workforce-billing/internal/domain"
	"workforce-billing/internal/domain/model"
	"workforce-billing/internal/domain/ports/repository"
)

var _ repository.PaymentIntentRepository = (*PaymentIntentRepo)(nil)

type PaymentIntentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentIntentRepo(pool *pgxpool.Pool) *PaymentIntentRepo {
	return &PaymentIntentRepo{pool: pool}
}

const paymentIntentColumns = `
	id, company_id, user_id, reference, amount, currency, purpose, status,
	provider, authorization_url, access_code, metadata, created_at, verified_at, paid_at`

func (r *PaymentIntentRepo) Save(ctx context.Context, tx repository.Tx, p *model.PaymentIntent) error {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return errors.Join(domain.ErrBadMetadata, err)
	}
	sql := `
		INSERT INTO payment_intents (
			id, company_id, user_id, reference, amount, currency, purpose, status,
			provider, authorization_url, access_code, metadata, created_at, verified_at, paid_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			authorization_url = EXCLUDED.authorization_url,
			access_code = EXCLUDED.access_code,
			metadata = EXCLUDED.metadata,
			verified_at = EXCLUDED.verified_at,
			paid_at = EXCLUDED.paid_at`
	_, err = execSQL(ctx, r.pool, tx, sql,
		p.ID, p.CompanyID, p.UserID, p.Reference, p.Amount, p.Currency,
		string(p.Purpose), string(p.Status), p.Provider, p.AuthorizationURL,
		p.AccessCode, meta, p.CreatedAt, p.VerifiedAt, p.PaidAt)
	if err != nil {
		return errors.Join(domain.ErrOperationFailed, err)
	}
	return nil
}

func (r *PaymentIntentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentIntent, error) {
	sql := `SELECT ` + paymentIntentColumns + ` FROM payment_intents WHERE id = $1`
	row, err := pickRow(ctx, r.pool, tx, sql, id)
	if err != nil {
		return nil, err
	}
	return scanIntent(row)
}

func (r *PaymentIntentRepo) FindByReference(ctx context.Context, tx repository.Tx, reference string) (*model.PaymentIntent, error) {
	sql := `SELECT ` + paymentIntentColumns + ` FROM payment_intents WHERE reference = $1`
	row, err := pickRow(ctx, r.pool, tx, sql, reference)
	if err != nil {
		return nil, err
	}
	return scanIntent(row)
}

func (r *PaymentIntentRepo) ListByCompany(ctx context.Context, tx repository.Tx, companyID string) ([]*model.PaymentIntent, error) {
	sql := `SELECT ` + paymentIntentColumns + `
		FROM payment_intents WHERE company_id = $1 ORDER BY created_at DESC`
	rows, err := queryRows(ctx, r.pool, tx, sql, companyID)
	if err != nil {
		return nil, errors.Join(domain.ErrOperationFailed, err)
	}
	defer rows.Close()
	return collectIntents(rows)
}

// UpdateStatusIfPending is the single serialization point for racing
// completion signals. The WHERE clause only matches rows still pending, so of
// N concurrent callers exactly one observes RowsAffected == 1.
func (r *PaymentIntentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, verifiedAt, paidAt *time.Time) (bool, error) {
	sql := `
		UPDATE payment_intents
		SET status = $2, verified_at = $3, paid_at = $4
		WHERE id = $1 AND status = 'pending'`
	tag, err := execSQL(ctx, r.pool, tx, sql, id, string(status), verifiedAt, paidAt)
	if err != nil {
		return false, errors.Join(domain.ErrOperationFailed, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PaymentIntentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentIntent, error) {
	sql := `SELECT ` + paymentIntentColumns + `
		FROM payment_intents
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`
	rows, err := queryRows(ctx, r.pool, tx, sql, olderThan, limit)
	if err != nil {
		return nil, errors.Join(domain.ErrOperationFailed, err)
	}
	defer rows.Close()
	return collectIntents(rows)
}

func scanIntent(row pgx.Row) (*model.PaymentIntent, error) {
	var (
		p        model.PaymentIntent
		purpose  string
		status   string
		metaJSON []byte
	)
	err := row.Scan(
		&p.ID, &p.CompanyID, &p.UserID, &p.Reference, &p.Amount, &p.Currency,
		&purpose, &status, &p.Provider, &p.AuthorizationURL, &p.AccessCode,
		&metaJSON, &p.CreatedAt, &p.VerifiedAt, &p.PaidAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	p.Purpose = model.PaymentPurpose(purpose)
	p.Status = model.PaymentStatus(status)
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &p.Metadata); err != nil {
			return nil, errors.Join(domain.ErrBadMetadata, err)
		}
	}
	return &p, nil
}

func collectIntents(rows pgx.Rows) ([]*model.PaymentIntent, error) {
	var out []*model.PaymentIntent
	for rows.Next() {
		p, err := scanIntent(rows)
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
