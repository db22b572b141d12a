package alerts

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vitalwatch/vitalwatch/internal/domain/vitals"
	"github.com/vitalwatch/vitalwatch/internal/platform/metrics"
)

type Service struct {
	alerts AlertRepository
	logger zerolog.Logger
}

func NewService(alerts AlertRepository, logger zerolog.Logger) *Service {
	return &Service{alerts: alerts, logger: logger}
}

// ProcessReading evaluates the threshold rules against a stored reading and
// persists one alert per violation. A failed alert insert is logged and
// skipped; it never fails the reading that triggered it. The returned slice
// contains only the alerts that were actually stored.
func (s *Service) ProcessReading(ctx context.Context, r *vitals.Reading) []*Alert {
	var stored []*Alert
	for _, c := range Evaluate(r) {
		a := &Alert{
			PatientID: r.PatientID,
			DeviceID:  r.DeviceID,
			ReadingID: r.ID,
			Type:      c.Type,
			Severity:  c.Severity,
			Threshold: c.Threshold,
			Value:     c.Value,
			Message:   c.Message,
		}
		if err := s.alerts.Create(ctx, a); err != nil {
			s.logger.Error().Err(err).
				Str("patient_id", r.PatientID.String()).
				Str("alert_type", c.Type).
				Msg("failed to store alert")
			continue
		}
		metrics.AlertsGeneratedTotal.WithLabelValues(a.Severity).Inc()
		stored = append(stored, a)
	}
	return stored
}

// Acknowledge marks an alert as acknowledged and records who acknowledged it.
// Acknowledging an already acknowledged alert is a no-op that returns the
// alert unchanged.
func (s *Service) Acknowledge(ctx context.Context, id uuid.UUID, by string) (*Alert, error) {
	return s.alerts.Acknowledge(ctx, id, by)
}

// GetAlert returns a single alert by id.
func (s *Service) GetAlert(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return s.alerts.GetByID(ctx, id)
}

// ListByPatient returns a page of a patient's alerts, newest first. A non-nil
// acknowledged narrows the result to that acknowledgement state.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, acknowledged *bool, limit, offset int) ([]*Alert, int, error) {
	return s.alerts.ListByPatient(ctx, patientID, acknowledged, limit, offset)
}

// ListUnacknowledged returns a page of open alerts across all patients.
func (s *Service) ListUnacknowledged(ctx context.Context, limit, offset int) ([]*Alert, int, error) {
	return s.alerts.ListUnacknowledged(ctx, limit, offset)
}
