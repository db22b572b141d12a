package registry

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidCredentials covers both unknown devices and wrong keys so a
	// probe cannot distinguish the two cases.
	ErrInvalidCredentials = errors.New("invalid device credentials")

	// ErrDeviceInactive means the credentials were valid but the binding has
	// been deactivated.
	ErrDeviceInactive = errors.New("device is inactive")
)

type Service struct {
	bindings BindingRepository
	liveness *Liveness
	logger   zerolog.Logger
}

func NewService(bindings BindingRepository, liveness *Liveness, logger zerolog.Logger) *Service {
	return &Service{bindings: bindings, liveness: liveness, logger: logger}
}

// Authenticate resolves a device binding from its device id and API key.
// Unknown device and wrong key both return ErrInvalidCredentials; only a
// valid key against a deactivated binding returns ErrDeviceInactive.
func (s *Service) Authenticate(ctx context.Context, deviceID, apiKey string) (*Binding, error) {
	if deviceID == "" || apiKey == "" {
		return nil, ErrInvalidCredentials
	}

	b, err := s.bindings.GetByDeviceID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(b.APIKey), []byte(apiKey)) != 1 {
		return nil, ErrInvalidCredentials
	}

	if !b.IsActive {
		return nil, ErrDeviceInactive
	}

	return b, nil
}

// RecordSync marks the binding as freshly heard from. Both the Postgres
// last_sync_at update and the Redis liveness touch are best-effort: failures
// are logged and never surfaced to the ingestion path.
func (s *Service) RecordSync(ctx context.Context, b *Binding, at time.Time) {
	if err := s.bindings.UpdateLastSync(ctx, b.ID); err != nil {
		s.logger.Warn().Err(err).Str("device_id", b.DeviceID).Msg("failed to update last sync")
	}
	if s.liveness != nil {
		if err := s.liveness.Touch(ctx, b.DeviceID, at); err != nil {
			s.logger.Warn().Err(err).Str("device_id", b.DeviceID).Msg("failed to touch device liveness")
		}
	}
}

// RegisterBinding stores a new device binding.
func (s *Service) RegisterBinding(ctx context.Context, b *Binding) error {
	if b.DeviceID == "" {
		return errors.New("device_id is required")
	}
	if b.APIKey == "" {
		return errors.New("api_key is required")
	}
	return s.bindings.Create(ctx, b)
}

// ListBindings returns a page of device bindings.
func (s *Service) ListBindings(ctx context.Context, limit, offset int) ([]*Binding, int, error) {
	return s.bindings.List(ctx, limit, offset)
}

// ListActiveBindings returns every active binding, used by the simulator to
// decide which devices to emit readings for.
func (s *Service) ListActiveBindings(ctx context.Context) ([]*Binding, error) {
	return s.bindings.ListActive(ctx)
}

// LastSeen reports the device's most recent liveness timestamp when tracking
// is enabled.
func (s *Service) LastSeen(ctx context.Context, deviceID string) (time.Time, bool, error) {
	if s.liveness == nil {
		return time.Time{}, false, nil
	}
	return s.liveness.LastSeen(ctx, deviceID)
}
