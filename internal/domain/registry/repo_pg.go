package registry

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type bindingRepoPG struct{ pool *pgxpool.Pool }

func NewBindingRepoPG(pool *pgxpool.Pool) BindingRepository {
	return &bindingRepoPG{pool: pool}
}

const bindingCols = `id, device_id, api_key, patient_id, label, is_active,
	last_sync_at, created_at, updated_at`

func (r *bindingRepoPG) scanBinding(row pgx.Row) (*Binding, error) {
	var b Binding
	err := row.Scan(&b.ID, &b.DeviceID, &b.APIKey, &b.PatientID, &b.Label,
		&b.IsActive, &b.LastSyncAt, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *bindingRepoPG) Create(ctx context.Context, b *Binding) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO devices (id, device_id, api_key, patient_id, label, is_active)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID, b.DeviceID, b.APIKey, b.PatientID, b.Label, b.IsActive)
	return err
}

func (r *bindingRepoPG) GetByDeviceID(ctx context.Context, deviceID string) (*Binding, error) {
	return r.scanBinding(r.pool.QueryRow(ctx,
		`SELECT `+bindingCols+` FROM devices WHERE device_id = $1`, deviceID))
}

func (r *bindingRepoPG) ListActive(ctx context.Context) ([]*Binding, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+bindingCols+` FROM devices WHERE is_active ORDER BY device_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Binding
	for rows.Next() {
		b, err := r.scanBinding(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (r *bindingRepoPG) List(ctx context.Context, limit, offset int) ([]*Binding, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM devices`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+bindingCols+` FROM devices ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Binding
	for rows.Next() {
		b, err := r.scanBinding(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

func (r *bindingRepoPG) UpdateLastSync(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE devices SET last_sync_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *bindingRepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE devices SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	return err
}
