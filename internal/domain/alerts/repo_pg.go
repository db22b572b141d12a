package alerts

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type alertRepoPG struct{ pool *pgxpool.Pool }

func NewAlertRepoPG(pool *pgxpool.Pool) AlertRepository {
	return &alertRepoPG{pool: pool}
}

const alertCols = `id, patient_id, device_id, reading_id, type, severity, threshold,
	value, message, acknowledged, acknowledged_by, acknowledged_at, created_at`

func (r *alertRepoPG) scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.PatientID, &a.DeviceID, &a.ReadingID, &a.Type,
		&a.Severity, &a.Threshold, &a.Value, &a.Message, &a.Acknowledged,
		&a.AcknowledgedBy, &a.AcknowledgedAt, &a.CreatedAt)
	return &a, err
}

func (r *alertRepoPG) Create(ctx context.Context, a *Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	// Scan back created_at so published events carry the stored row as-is.
	return r.pool.QueryRow(ctx, `
		INSERT INTO alerts (id, patient_id, device_id, reading_id, type, severity, threshold, value, message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		a.ID, a.PatientID, a.DeviceID, a.ReadingID, a.Type, a.Severity, a.Threshold, a.Value, a.Message).Scan(&a.CreatedAt)
}

func (r *alertRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return r.scanAlert(r.pool.QueryRow(ctx,
		`SELECT `+alertCols+` FROM alerts WHERE id = $1`, id))
}

func (r *alertRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, acknowledged *bool, limit, offset int) ([]*Alert, int, error) {
	// $2 doubles as a disable flag: when acknowledged is nil the filter
	// matches every row.
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts
		 WHERE patient_id = $1 AND ($2::boolean IS NULL OR acknowledged = $2)`,
		patientID, acknowledged).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+alertCols+` FROM alerts
		 WHERE patient_id = $1 AND ($2::boolean IS NULL OR acknowledged = $2)
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		patientID, acknowledged, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Alert
	for rows.Next() {
		a, err := r.scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *alertRepoPG) ListUnacknowledged(ctx context.Context, limit, offset int) ([]*Alert, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE NOT acknowledged`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+alertCols+` FROM alerts WHERE NOT acknowledged
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Alert
	for rows.Next() {
		a, err := r.scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *alertRepoPG) Acknowledge(ctx context.Context, id uuid.UUID, by string) (*Alert, error) {
	// Idempotent: re-acknowledging keeps the original acknowledger and time.
	return r.scanAlert(r.pool.QueryRow(ctx, `
		UPDATE alerts
		SET acknowledged = TRUE,
		    acknowledged_by = COALESCE(acknowledged_by, NULLIF($2, '')),
		    acknowledged_at = COALESCE(acknowledged_at, NOW())
		WHERE id = $1
		RETURNING `+alertCols, id, by))
}
