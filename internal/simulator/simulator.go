// Package simulator generates synthetic readings for every active device
// binding, for demos and load testing. Simulated readings enter the same
// pipeline as real ones, just past the credential check.
package simulator

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalwatch/vitalwatch/internal/domain/ingest"
	"github.com/vitalwatch/vitalwatch/internal/domain/registry"
)

// BindingLister supplies the devices to simulate.
type BindingLister interface {
	ListActiveBindings(ctx context.Context) ([]*registry.Binding, error)
}

// Processor accepts a reading for an already-authenticated binding.
type Processor interface {
	Process(ctx context.Context, b *registry.Binding, req ingest.SubmitRequest) (*ingest.Result, error)
}

type Simulator struct {
	bindings BindingLister
	pipeline Processor
	interval time.Duration
	logger   zerolog.Logger
	rng      *rand.Rand
}

func New(bindings BindingLister, pipeline Processor, interval time.Duration, logger zerolog.Logger) *Simulator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Simulator{
		bindings: bindings,
		pipeline: pipeline,
		interval: interval,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run emits one reading per active binding every interval until the context
// is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("simulator started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("simulator stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick generates and submits one reading for every active binding. Failures
// on one device never stop the rest of the fleet.
func (s *Simulator) Tick(ctx context.Context) {
	bindings, err := s.bindings.ListActiveBindings(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list active bindings")
		return
	}

	for _, b := range bindings {
		req := s.Generate(b.DeviceID)
		result, err := s.pipeline.Process(ctx, b, req)
		if err != nil {
			s.logger.Error().Err(err).Str("device_id", b.DeviceID).Msg("simulated reading rejected")
			continue
		}
		s.logger.Debug().
			Str("device_id", b.DeviceID).
			Int("alerts", len(result.Alerts)).
			Msg("simulated reading submitted")
	}
}

// Generate produces one plausible reading for a device. Each vital starts
// from a baseline band and gets a small multiplicative jitter.
func (s *Simulator) Generate(deviceID string) ingest.SubmitRequest {
	spo2 := s.jitter(s.between(96, 99))
	if spo2 > 100 {
		spo2 = 100
	}
	return ingest.SubmitRequest{
		DeviceID:        deviceID,
		Timestamp:       time.Now().UnixMilli(),
		HeartRate:       fptr(s.jitter(s.between(70, 90))),
		SpO2:            fptr(spo2),
		SystolicBP:      fptr(s.jitter(s.between(110, 130))),
		DiastolicBP:     fptr(s.jitter(s.between(70, 85))),
		Temperature:     fptr(s.jitter(s.between(36.0, 38.5))),
		RespiratoryRate: fptr(s.jitter(s.between(12, 20))),
	}
}

func (s *Simulator) between(min, max float64) float64 {
	return min + s.rng.Float64()*(max-min)
}

func (s *Simulator) jitter(v float64) float64 {
	return v * (0.95 + s.rng.Float64()*0.10)
}

func fptr(v float64) *float64 { return &v }
