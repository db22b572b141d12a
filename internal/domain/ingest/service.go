// Package ingest implements the device-facing ingestion pipeline: credential
// check, payload validation, durable storage, threshold evaluation, and
// realtime fan-out, in that order.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalwatch/vitalwatch/internal/domain/alerts"
	"github.com/vitalwatch/vitalwatch/internal/domain/registry"
	"github.com/vitalwatch/vitalwatch/internal/domain/vitals"
	"github.com/vitalwatch/vitalwatch/internal/platform/metrics"
	"github.com/vitalwatch/vitalwatch/internal/platform/realtime"
)

// SubmitRequest is the payload a device posts. Timestamp is epoch
// milliseconds, supplied by the device and authoritative for ordering. The
// oxygen_saturation field is an accepted alias for spo2; spo2 wins when both
// are present.
type SubmitRequest struct {
	DeviceID         string   `json:"device_id"`
	Timestamp        int64    `json:"timestamp"`
	HeartRate        *float64 `json:"heart_rate"`
	SpO2             *float64 `json:"spo2"`
	OxygenSaturation *float64 `json:"oxygen_saturation"`
	SystolicBP       *float64 `json:"systolic_bp"`
	DiastolicBP      *float64 `json:"diastolic_bp"`
	Temperature      *float64 `json:"body_temperature"`
	RespiratoryRate  *float64 `json:"respiratory_rate"`
}

// Result is what a successful ingestion produced.
type Result struct {
	Reading *vitals.Reading
	Alerts  []*alerts.Alert
}

type Service struct {
	registry   *registry.Service
	vitals     *vitals.Service
	alerts     *alerts.Service
	publishers []realtime.EventPublisher
	logger     zerolog.Logger
	skewWarn   time.Duration
	now        func() time.Time
}

func NewService(
	reg *registry.Service,
	vit *vitals.Service,
	al *alerts.Service,
	publishers []realtime.EventPublisher,
	skewWarn time.Duration,
	logger zerolog.Logger,
) *Service {
	if skewWarn <= 0 {
		skewWarn = time.Hour
	}
	return &Service{
		registry:   reg,
		vitals:     vit,
		alerts:     al,
		publishers: publishers,
		logger:     logger,
		skewWarn:   skewWarn,
		now:        time.Now,
	}
}

// Ingest runs the full pipeline for an external device submission.
func (s *Service) Ingest(ctx context.Context, apiKey string, req SubmitRequest) (*Result, error) {
	b, err := s.registry.Authenticate(ctx, req.DeviceID, apiKey)
	if err != nil {
		reason := "auth"
		if err == registry.ErrDeviceInactive {
			reason = "inactive"
		}
		metrics.ReadingsRejectedTotal.WithLabelValues(reason).Inc()
		return nil, err
	}
	return s.Process(ctx, b, req)
}

// Process runs the pipeline for an already-authenticated binding. The
// simulator enters here: its readings are trusted but still validated,
// stored, evaluated, and published exactly like external ones.
func (s *Service) Process(ctx context.Context, b *registry.Binding, req SubmitRequest) (*Result, error) {
	recordedAt, err := s.validate(req)
	if err != nil {
		metrics.ReadingsRejectedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	if skew := absDuration(s.now().Sub(recordedAt)); skew > s.skewWarn {
		s.logger.Warn().
			Str("device_id", req.DeviceID).
			Time("recorded_at", recordedAt).
			Dur("skew", skew).
			Msg("reading timestamp far from server time")
	}

	reading := &vitals.Reading{
		PatientID:       b.PatientID,
		DeviceID:        b.DeviceID,
		RecordedAt:      recordedAt,
		HeartRate:       req.HeartRate,
		SpO2:            req.spo2(),
		SystolicBP:      req.SystolicBP,
		DiastolicBP:     req.DiastolicBP,
		Temperature:     req.Temperature,
		RespiratoryRate: req.RespiratoryRate,
	}

	if err := s.vitals.Append(ctx, reading); err != nil {
		metrics.ReadingsRejectedTotal.WithLabelValues("storage").Inc()
		return nil, err
	}
	metrics.ReadingsIngestedTotal.Inc()

	generated := s.alerts.ProcessReading(ctx, reading)

	s.registry.RecordSync(ctx, b, s.now())

	s.publishReading(ctx, reading)
	for _, a := range generated {
		s.publishAlert(ctx, a)
	}

	return &Result{Reading: reading, Alerts: generated}, nil
}

// validate checks the payload and returns the parsed timestamp.
func (s *Service) validate(req SubmitRequest) (time.Time, error) {
	if req.DeviceID == "" {
		return time.Time{}, validationf("device_id is required")
	}
	if req.Timestamp == 0 {
		return time.Time{}, validationf("timestamp is required")
	}
	if req.Timestamp < 0 {
		return time.Time{}, validationf("timestamp must be epoch milliseconds")
	}
	recordedAt := time.UnixMilli(req.Timestamp)

	checks := []struct {
		name     string
		val      *float64
		min, max float64
	}{
		{"heart_rate", req.HeartRate, 0, 300},
		{"spo2", req.spo2(), 0, 100},
		{"systolic_bp", req.SystolicBP, 0, 300},
		{"diastolic_bp", req.DiastolicBP, 0, 200},
		{"body_temperature", req.Temperature, 25, 45},
		{"respiratory_rate", req.RespiratoryRate, 0, 60},
	}
	present := 0
	for _, c := range checks {
		if c.val == nil {
			continue
		}
		present++
		if *c.val < c.min || *c.val > c.max {
			return time.Time{}, validationf("%s out of range [%g, %g]: %g", c.name, c.min, c.max, *c.val)
		}
	}
	if present == 0 {
		return time.Time{}, validationf("at least one vital sign is required")
	}
	return recordedAt.UTC(), nil
}

func (req SubmitRequest) spo2() *float64 {
	if req.SpO2 != nil {
		return req.SpO2
	}
	return req.OxygenSaturation
}

func (s *Service) publishReading(ctx context.Context, r *vitals.Reading) {
	data, err := json.Marshal(r)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal reading event")
		return
	}
	s.publish(ctx, realtime.Event{
		Type:      realtime.EventReadingCreated,
		Topic:     realtime.TopicVitals,
		PatientID: r.PatientID.String(),
		Timestamp: r.RecordedAt,
		Data:      data,
	})
}

func (s *Service) publishAlert(ctx context.Context, a *alerts.Alert) {
	data, err := json.Marshal(a)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal alert event")
		return
	}
	s.publish(ctx, realtime.Event{
		Type:      realtime.EventAlertCreated,
		Topic:     realtime.TopicAlerts,
		PatientID: a.PatientID.String(),
		Timestamp: s.now().UTC(),
		Data:      data,
	})
}

func (s *Service) publish(ctx context.Context, ev realtime.Event) {
	for _, p := range s.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("event_type", ev.Type).Msg("event publish failed")
		}
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
