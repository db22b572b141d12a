package vitals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type readingRepoPG struct{ pool *pgxpool.Pool }

func NewReadingRepoPG(pool *pgxpool.Pool) ReadingRepository {
	return &readingRepoPG{pool: pool}
}

const readingCols = `id, patient_id, device_id, recorded_at, heart_rate, spo2,
	systolic_bp, diastolic_bp, body_temperature, respiratory_rate, created_at`

func (r *readingRepoPG) scanReading(row pgx.Row) (*Reading, error) {
	var rd Reading
	err := row.Scan(&rd.ID, &rd.PatientID, &rd.DeviceID, &rd.RecordedAt,
		&rd.HeartRate, &rd.SpO2, &rd.SystolicBP, &rd.DiastolicBP,
		&rd.Temperature, &rd.RespiratoryRate, &rd.CreatedAt)
	return &rd, err
}

func (r *readingRepoPG) Append(ctx context.Context, rd *Reading) error {
	if rd.ID == uuid.Nil {
		rd.ID = uuid.New()
	}
	// Scan back created_at so published events carry the stored row as-is.
	return r.pool.QueryRow(ctx, `
		INSERT INTO sensor_readings (id, patient_id, device_id, recorded_at,
			heart_rate, spo2, systolic_bp, diastolic_bp, body_temperature, respiratory_rate)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		rd.ID, rd.PatientID, rd.DeviceID, rd.RecordedAt,
		rd.HeartRate, rd.SpO2, rd.SystolicBP, rd.DiastolicBP,
		rd.Temperature, rd.RespiratoryRate).Scan(&rd.CreatedAt)
}

func (r *readingRepoPG) Latest(ctx context.Context, patientID uuid.UUID) (*Reading, error) {
	return r.scanReading(r.pool.QueryRow(ctx,
		`SELECT `+readingCols+` FROM sensor_readings
		 WHERE patient_id = $1 ORDER BY recorded_at DESC LIMIT 1`, patientID))
}

func (r *readingRepoPG) Window(ctx context.Context, patientID uuid.UUID, from, to time.Time, limit, offset int) ([]*Reading, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sensor_readings
		 WHERE patient_id = $1 AND recorded_at >= $2 AND recorded_at < $3`,
		patientID, from, to).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+readingCols+` FROM sensor_readings
		 WHERE patient_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		 ORDER BY recorded_at DESC LIMIT $4 OFFSET $5`,
		patientID, from, to, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Reading
	for rows.Next() {
		rd, err := r.scanReading(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rd)
	}
	return items, total, rows.Err()
}
