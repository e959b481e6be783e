package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"playground-llm/internal/domain"
)

// AccessCodeRepository define el contrato de persistencia para codigos de acceso.
type AccessCodeRepository interface {
	Create(ctx context.Context, code domain.AccessCode) error
	GetByID(ctx context.Context, id string) (domain.AccessCode, error)
	GetByCode(ctx context.Context, code string) (domain.AccessCode, error)
	List(ctx context.Context) ([]domain.AccessCode, error)
	Update(ctx context.Context, code domain.AccessCode) error
	Delete(ctx context.Context, id string) error
	ConsumeUse(ctx context.Context, id string) (domain.AccessCode, error)
}

// PgAccessCodeRepository implementa AccessCodeRepository usando pgxpool.
type PgAccessCodeRepository struct {
	pool *pgxpool.Pool
}

func NewPgAccessCodeRepository(pool *pgxpool.Pool) *PgAccessCodeRepository {
	return &PgAccessCodeRepository{pool: pool}
}

const accessCodeColumns = `id, code, label, max_uses, used_count, active, expires_at, created_at`

func (r *PgAccessCodeRepository) Create(ctx context.Context, code domain.AccessCode) error {
	const query = `
		INSERT INTO access_codes (id, code, label, max_uses, used_count, active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		code.ID,
		code.Code,
		code.Label,
		code.MaxUses,
		code.UsedCount,
		code.Active,
		code.ExpiresAt,
		code.CreatedAt,
	)
	return err
}

func (r *PgAccessCodeRepository) GetByID(ctx context.Context, id string) (domain.AccessCode, error) {
	const query = `
		SELECT ` + accessCodeColumns + `
		FROM access_codes
		WHERE id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *PgAccessCodeRepository) GetByCode(ctx context.Context, code string) (domain.AccessCode, error) {
	const query = `
		SELECT ` + accessCodeColumns + `
		FROM access_codes
		WHERE code = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, code))
}

func (r *PgAccessCodeRepository) List(ctx context.Context) ([]domain.AccessCode, error) {
	const query = `
		SELECT ` + accessCodeColumns + `
		FROM access_codes
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []domain.AccessCode
	for rows.Next() {
		var c domain.AccessCode
		if err := rows.Scan(&c.ID, &c.Code, &c.Label, &c.MaxUses, &c.UsedCount, &c.Active, &c.ExpiresAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

func (r *PgAccessCodeRepository) Update(ctx context.Context, code domain.AccessCode) error {
	const query = `
		UPDATE access_codes
		SET label = $2, max_uses = $3, active = $4, expires_at = $5
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query,
		code.ID,
		code.Label,
		code.MaxUses,
		code.Active,
		code.ExpiresAt,
	)
	return err
}

func (r *PgAccessCodeRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM access_codes WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// ConsumeUse descuenta un uso de forma atomica. Si el codigo esta inactivo,
// vencido o agotado el UPDATE no matchea filas y pgx devuelve ErrNoRows; el
// servicio decide con un GetByID posterior cual fue el motivo.
func (r *PgAccessCodeRepository) ConsumeUse(ctx context.Context, id string) (domain.AccessCode, error) {
	const query = `
		UPDATE access_codes
		SET used_count = used_count + 1
		WHERE id = $1
		  AND active
		  AND (expires_at IS NULL OR expires_at > now())
		  AND (max_uses <= 0 OR used_count < max_uses)
		RETURNING ` + accessCodeColumns + `
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PgAccessCodeRepository) scanOne(row rowScanner) (domain.AccessCode, error) {
	var c domain.AccessCode
	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.Label,
		&c.MaxUses,
		&c.UsedCount,
		&c.Active,
		&c.ExpiresAt,
		&c.CreatedAt,
	)
	if err != nil {
		return domain.AccessCode{}, err
	}
	return c, nil
}
