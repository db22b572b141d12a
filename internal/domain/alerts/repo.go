package alerts

import (
	"context"

	"github.com/google/uuid"
)

type AlertRepository interface {
	Create(ctx context.Context, a *Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, acknowledged *bool, limit, offset int) ([]*Alert, int, error)
	ListUnacknowledged(ctx context.Context, limit, offset int) ([]*Alert, int, error)
	Acknowledge(ctx context.Context, id uuid.UUID, by string) (*Alert, error)
}
