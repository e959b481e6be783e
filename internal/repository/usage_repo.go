package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"playground-llm/internal/domain"
)

// UsageRepository define el contrato de persistencia para registros de uso.
type UsageRepository interface {
	Create(ctx context.Context, record domain.UsageRecord) error
	ListRecent(ctx context.Context, limit int) ([]domain.UsageRecord, error)
	TotalsByCode(ctx context.Context) ([]domain.CodeUsageTotal, error)
}

// PgUsageRepository implementa UsageRepository usando pgxpool.
type PgUsageRepository struct {
	pool *pgxpool.Pool
}

func NewPgUsageRepository(pool *pgxpool.Pool) *PgUsageRepository {
	return &PgUsageRepository{pool: pool}
}

func (r *PgUsageRepository) Create(ctx context.Context, record domain.UsageRecord) error {
	const query = `
		INSERT INTO usage_records (id, code_id, visitor_ip, prompt_len, model, status, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		record.ID,
		record.CodeID,
		record.VisitorIP,
		record.PromptLen,
		record.Model,
		record.Status,
		record.DurationMs,
		record.CreatedAt,
	)
	return err
}

func (r *PgUsageRepository) ListRecent(ctx context.Context, limit int) ([]domain.UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, code_id, visitor_ip, prompt_len, model, status, duration_ms, created_at
		FROM usage_records
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.UsageRecord
	for rows.Next() {
		var rec domain.UsageRecord
		if err := rows.Scan(&rec.ID, &rec.CodeID, &rec.VisitorIP, &rec.PromptLen, &rec.Model, &rec.Status, &rec.DurationMs, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *PgUsageRepository) TotalsByCode(ctx context.Context) ([]domain.CodeUsageTotal, error) {
	const query = `
		SELECT u.code_id, COALESCE(c.label, ''), COUNT(*), COUNT(*) FILTER (WHERE u.status <> 'ok')
		FROM usage_records u
		LEFT JOIN access_codes c ON c.id = u.code_id
		GROUP BY u.code_id, c.label
		ORDER BY COUNT(*) DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []domain.CodeUsageTotal
	for rows.Next() {
		var t domain.CodeUsageTotal
		if err := rows.Scan(&t.CodeID, &t.Label, &t.Total, &t.Failed); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}
