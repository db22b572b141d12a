package registry

import (
	"context"

	"github.com/google/uuid"
)

type BindingRepository interface {
	Create(ctx context.Context, b *Binding) error
	GetByDeviceID(ctx context.Context, deviceID string) (*Binding, error)
	ListActive(ctx context.Context) ([]*Binding, error)
	List(ctx context.Context, limit, offset int) ([]*Binding, int, error)
	UpdateLastSync(ctx context.Context, id uuid.UUID) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}
