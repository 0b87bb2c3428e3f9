// Package service assembles the fusion guard with its telemetry source,
// oracle, and output sinks, and runs the monitoring session.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"location-spoof-guard/internal/alerting"
	"location-spoof-guard/internal/config"
	"location-spoof-guard/internal/guard"
	"location-spoof-guard/internal/motion"
	"location-spoof-guard/internal/storage"
	"location-spoof-guard/internal/trajectory"
)

// GuardConfig translates runtime configuration into guard thresholds.
func GuardConfig(cfg *config.Config) (guard.Config, error) {
	boundary, err := cfg.Territory.Polygon()
	if err != nil {
		return guard.Config{}, err
	}
	return guard.Config{
		Trajectory: trajectory.Config{
			MaxPlausibleSpeed:   cfg.Guard.MaxPlausibleSpeed,
			StaticCoordinateRun: cfg.Guard.StaticCoordinateRun,
			StaticAccuracyRun:   cfg.Guard.StaticAccuracyRun,
		},
		Motion: motion.Config{
			WindowCapacity: cfg.Guard.MotionWindowCapacity,
			MinSamples:     cfg.Guard.MinMotionSamples,
			WalkSpeed:      cfg.Guard.WalkSpeed,
			WalkVariance:   cfg.Guard.WalkVariance,
		},
		Boundary:              boundary,
		MockPollInterval:      cfg.Guard.MockPollInterval,
		TerritoryPollInterval: cfg.Guard.TerritoryPollInterval,
	}, nil
}

// Service owns one guard session over injected collaborators.
type Service struct {
	guard  *guard.Guard
	logger zerolog.Logger
}

// New builds a Service around a constructed guard.
func New(g *guard.Guard, logger zerolog.Logger) *Service {
	return &Service{guard: g, logger: logger.With().Str("component", "service").Logger()}
}

// Run starts monitoring and blocks until the context is cancelled, then
// stops the guard. A declined start (permission denied) returns nil
// immediately.
func (s *Service) Run(ctx context.Context) error {
	if err := s.guard.Start(ctx); err != nil {
		return err
	}
	if !s.guard.Monitoring() {
		s.logger.Warn().Msg("monitoring declined; nothing to do")
		return nil
	}

	<-ctx.Done()
	s.guard.Stop()

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// FraudFanout delivers each fraud signal to the log, the optional
// notifier, and the optional audit store, in that order. Delivery
// failures are logged and never propagate into the guard.
type FraudFanout struct {
	Notifier alerting.Notifier
	Store    storage.FraudEventStore
	Device   string
	Logger   zerolog.Logger
}

// FraudDetected implements guard.FraudSink.
func (f *FraudFanout) FraudDetected(ctx context.Context, at time.Time, reason string) {
	f.Logger.Warn().Time("at", at).Str("reason", reason).Msg("fraud detected")

	if f.Store != nil {
		event := storage.FraudEvent{At: at, Reason: reason}
		if _, err := f.Store.InsertFraudEvent(ctx, event); err != nil {
			f.Logger.Error().Err(err).Msg("failed to persist fraud event")
		}
	}

	if f.Notifier != nil {
		note := alerting.Notification{At: at, Reason: reason, Device: f.Device}
		if err := f.Notifier.Notify(ctx, note); err != nil {
			f.Logger.Error().Err(err).Msg("failed to dispatch fraud alert")
		}
	}
}

// UpdateRecorder persists accepted fixes to the audit store when one is
// configured and otherwise just logs them.
type UpdateRecorder struct {
	Store  storage.PositionSampleStore
	Logger zerolog.Logger
}

// PositionAccepted implements guard.UpdateSink.
func (u *UpdateRecorder) PositionAccepted(ctx context.Context, update guard.Update) {
	u.Logger.Debug().
		Float64("lat", update.Fix.Latitude).
		Float64("lon", update.Fix.Longitude).
		Float64("speed", update.Speed).
		Float64("variance", update.Variance).
		Msg("position accepted")

	if u.Store == nil {
		return
	}
	sample := storage.PositionSample{
		At:        update.Fix.Time,
		Latitude:  update.Fix.Latitude,
		Longitude: update.Fix.Longitude,
		Altitude:  update.Fix.Altitude,
		Accuracy:  update.Fix.Accuracy,
		Speed:     update.Speed,
		Variance:  update.Variance,
	}
	if err := u.Store.InsertPositionSample(ctx, sample); err != nil {
		u.Logger.Error().Err(err).Msg("failed to persist position sample")
	}
}

var (
	_ guard.FraudSink  = (*FraudFanout)(nil)
	_ guard.UpdateSink = (*UpdateRecorder)(nil)
)
