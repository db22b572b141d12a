package vitals

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ReadingRepository interface {
	Append(ctx context.Context, r *Reading) error
	Latest(ctx context.Context, patientID uuid.UUID) (*Reading, error)
	Window(ctx context.Context, patientID uuid.UUID, from, to time.Time, limit, offset int) ([]*Reading, int, error)
}

// LatestCache caches the most recent reading per patient so dashboards can
// poll without touching Postgres. Implementations must treat a miss as a
// normal outcome, not an error.
type LatestCache interface {
	SetLatest(ctx context.Context, r *Reading) error
	GetLatest(ctx context.Context, patientID uuid.UUID) (*Reading, bool, error)
}
