package vitals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	readings ReadingRepository
	cache    LatestCache
	logger   zerolog.Logger
}

// NewService creates the vitals service. cache may be nil, in which case
// Latest always goes to the repository.
func NewService(readings ReadingRepository, cache LatestCache, logger zerolog.Logger) *Service {
	return &Service{readings: readings, cache: cache, logger: logger}
}

// Append durably stores a reading and refreshes the latest-reading cache.
// The cache write is best-effort and keeps whichever reading has the newest
// recorded_at: devices flush buffered data after connectivity gaps, so
// arrival order does not imply timestamp order.
func (s *Service) Append(ctx context.Context, r *Reading) error {
	if err := s.readings.Append(ctx, r); err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}
	cached, ok, err := s.cache.GetLatest(ctx, r.PatientID)
	if err == nil && ok && cached.RecordedAt.After(r.RecordedAt) {
		return nil
	}
	if err := s.cache.SetLatest(ctx, r); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", r.PatientID.String()).Msg("failed to cache latest reading")
	}
	return nil
}

// Latest returns the most recent reading for a patient, from cache when
// possible. A cache failure falls through to the repository.
func (s *Service) Latest(ctx context.Context, patientID uuid.UUID) (*Reading, error) {
	if s.cache != nil {
		r, ok, err := s.cache.GetLatest(ctx, patientID)
		if err != nil {
			s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("latest reading cache lookup failed")
		} else if ok {
			return r, nil
		}
	}

	r, err := s.readings.Latest(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetLatest(ctx, r); err != nil {
			s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("failed to backfill latest reading cache")
		}
	}
	return r, nil
}

// Window returns readings for a patient within [from, to), newest first.
func (s *Service) Window(ctx context.Context, patientID uuid.UUID, from, to time.Time, limit, offset int) ([]*Reading, int, error) {
	return s.readings.Window(ctx, patientID, from, to, limit, offset)
}
