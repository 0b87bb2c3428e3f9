// Package guard fuses the independent spoofing analyzers into a single
// accept/reject decision per incoming position fix.
package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"location-spoof-guard/internal/geo"
	"location-spoof-guard/internal/motion"
	"location-spoof-guard/internal/scheduler"
	"location-spoof-guard/internal/telemetry"
	"location-spoof-guard/internal/trajectory"
)

// Fraud reason strings delivered to the fraud sink, one call per event.
const (
	ReasonOSMock           = "OS reports an active mock location provider"
	ReasonOracleMock       = "mock location setting enabled at OS level"
	ReasonJoystickWalk     = "GPS motion without physical correlation"
	ReasonOutsideTerritory = "device left the permitted territory"

	reasonAltitudeZero   = "altitude reads exactly zero"
	reasonTeleportation  = "implausible travel speed between fixes"
	reasonStaticPosition = "coordinates frozen across consecutive fixes"
	reasonStaticAccuracy = "horizontal accuracy frozen across consecutive fixes"
)

// ReasonForVerdict maps a non-None trajectory verdict to its fraud reason.
func ReasonForVerdict(v trajectory.Verdict) string {
	switch v {
	case trajectory.AltitudeZero:
		return reasonAltitudeZero
	case trajectory.Teleportation:
		return reasonTeleportation
	case trajectory.ArtificialStaticPosition:
		return reasonStaticPosition
	case trajectory.StaticAccuracy:
		return reasonStaticAccuracy
	default:
		return "unclassified trajectory anomaly"
	}
}

// Update is one accepted position fix with its liveness context.
type Update struct {
	Fix      telemetry.Fix
	Variance float64 // motion window variance at acceptance time
	Speed    float64 // m/s, as reported by the fix
}

// FraudSink receives one human-readable reason per detected event. The
// guard does not deduplicate.
type FraudSink interface {
	FraudDetected(ctx context.Context, at time.Time, reason string)
}

// UpdateSink receives every accepted fix.
type UpdateSink interface {
	PositionAccepted(ctx context.Context, update Update)
}

// PositionSource yields the push-based fix stream, the best-effort
// last-known position, and the platform permission gate.
type PositionSource interface {
	RequestPermission(ctx context.Context) (bool, error)
	SubscribeFixes(ctx context.Context, handler func(telemetry.Fix)) (func(), error)
	LastKnown(ctx context.Context) (telemetry.Fix, bool, error)
}

// AccelerometerSource yields gravity-removed 3-axis samples.
type AccelerometerSource interface {
	SubscribeSamples(ctx context.Context, handler func(telemetry.AccelSample)) (func(), error)
}

// MockOracle answers whether OS-level location spoofing is configured.
// A failed query skips the poll cycle, nothing more.
type MockOracle interface {
	IsMockEnabled(ctx context.Context) (bool, error)
}

// Config collects the fusion thresholds and poll cadences.
type Config struct {
	Trajectory            trajectory.Config
	Motion                motion.Config
	Boundary              geo.Polygon
	MockPollInterval      time.Duration
	TerritoryPollInterval time.Duration
}

// DefaultConfig returns the default cadences with zero-value analyzer
// configs (those default internally).
func DefaultConfig() Config {
	return Config{
		Trajectory:            trajectory.DefaultConfig(),
		Motion:                motion.DefaultConfig(),
		MockPollInterval:      5 * time.Second,
		TerritoryPollInterval: 30 * time.Second,
	}
}

// Guard owns one analyzer and one motion tracker for the lifetime of a
// monitoring session and serializes every handler that touches them.
type Guard struct {
	cfg       Config
	positions PositionSource
	accel     AccelerometerSource
	oracle    MockOracle
	fraud     FraudSink
	updates   UpdateSink
	logger    zerolog.Logger

	mu         sync.Mutex
	monitoring bool
	outside    bool
	analyzer   *trajectory.Analyzer
	tracker    *motion.Tracker
	runCtx     context.Context
	cancel     context.CancelFunc
	unsubFix   func()
	unsubAccel func()
	wg         sync.WaitGroup
}

// New constructs an idle Guard. Sinks may be nil, in which case events are
// only logged. The accelerometer source and oracle may be nil too; the
// corresponding checks then never fire.
func New(cfg Config, positions PositionSource, accel AccelerometerSource, oracle MockOracle, fraud FraudSink, updates UpdateSink, logger zerolog.Logger) *Guard {
	if cfg.MockPollInterval <= 0 {
		cfg.MockPollInterval = DefaultConfig().MockPollInterval
	}
	if cfg.TerritoryPollInterval <= 0 {
		cfg.TerritoryPollInterval = DefaultConfig().TerritoryPollInterval
	}
	return &Guard{
		cfg:       cfg,
		positions: positions,
		accel:     accel,
		oracle:    oracle,
		fraud:     fraud,
		updates:   updates,
		logger:    logger.With().Str("component", "guard").Logger(),
		analyzer:  trajectory.NewAnalyzer(cfg.Trajectory),
		tracker:   motion.NewTracker(cfg.Motion),
	}
}

// Monitoring reports whether a session is active.
func (g *Guard) Monitoring() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.monitoring
}

// Start transitions Idle -> Monitoring. A second Start while monitoring is
// a no-op. Denied location permission leaves the guard Idle and returns
// nil: a declined start, not an error.
func (g *Guard) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.monitoring {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	granted, err := g.positions.RequestPermission(ctx)
	if err != nil {
		return fmt.Errorf("request location permission: %w", err)
	}
	if !granted {
		g.logger.Info().Msg("location permission denied; monitoring not started")
		return nil
	}

	// The session outlives the Start call.
	runCtx, cancel := context.WithCancel(context.Background())

	unsubFix, err := g.positions.SubscribeFixes(runCtx, g.HandleFix)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to position fixes: %w", err)
	}

	var unsubAccel func()
	if g.accel != nil {
		unsubAccel, err = g.accel.SubscribeSamples(runCtx, g.HandleSample)
		if err != nil {
			unsubFix()
			cancel()
			return fmt.Errorf("subscribe to accelerometer samples: %w", err)
		}
	}

	g.mu.Lock()
	g.monitoring = true
	g.outside = false
	g.runCtx = runCtx
	g.cancel = cancel
	g.unsubFix = unsubFix
	g.unsubAccel = unsubAccel
	g.mu.Unlock()

	if g.oracle != nil {
		g.wg.Add(1)
		go g.runPoller(runCtx, "mock_oracle", g.cfg.MockPollInterval, g.pollMockOracle)
	}
	g.wg.Add(1)
	go g.runPoller(runCtx, "territory", g.cfg.TerritoryPollInterval, g.pollTerritory)

	g.logger.Info().
		Dur("mock_poll", g.cfg.MockPollInterval).
		Dur("territory_poll", g.cfg.TerritoryPollInterval).
		Msg("monitoring started")
	return nil
}

// Stop cancels the pollers and subscriptions and resets the analyzer and
// tracker. After Stop returns no new handler starts; at most one handler
// already in flight is allowed to finish. Safe to call while Idle.
func (g *Guard) Stop() {
	g.mu.Lock()
	if !g.monitoring {
		g.mu.Unlock()
		return
	}
	g.monitoring = false
	cancel := g.cancel
	unsubFix := g.unsubFix
	unsubAccel := g.unsubAccel
	g.cancel, g.unsubFix, g.unsubAccel, g.runCtx = nil, nil, nil, nil
	g.mu.Unlock()

	if unsubFix != nil {
		unsubFix()
	}
	if unsubAccel != nil {
		unsubAccel()
	}
	if cancel != nil {
		cancel()
	}
	g.wg.Wait()

	g.mu.Lock()
	g.analyzer.Reset()
	g.tracker.Reset()
	g.outside = false
	g.mu.Unlock()

	g.logger.Info().Msg("monitoring stopped")
}

// HandleFix applies the fusion precedence to one incoming fix. Exactly one
// of {accepted update, fraud signal, silent territorial discard} results.
func (g *Guard) HandleFix(fix telemetry.Fix) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.monitoring {
		return
	}
	ctx := g.runCtx

	if fix.MockedByOS {
		// Discarded entirely: the analyzer never sees an OS-flagged fix.
		g.emitFraud(ctx, fix.Time, ReasonOSMock)
		return
	}

	if g.outside {
		// Hard gate. The territory poller already signalled the transition.
		g.logger.Debug().
			Float64("lat", fix.Latitude).
			Float64("lon", fix.Longitude).
			Msg("fix discarded while outside territory")
		return
	}

	if g.tracker.IsJoystickWalk(fix.Speed) {
		g.emitFraud(ctx, fix.Time, ReasonJoystickWalk)
		return
	}

	if verdict := g.analyzer.Analyze(fix); verdict != trajectory.None {
		g.logger.Warn().Stringer("verdict", verdict).Msg("trajectory anomaly")
		g.emitFraud(ctx, fix.Time, ReasonForVerdict(verdict))
		return
	}

	update := Update{Fix: fix, Variance: g.tracker.Variance(), Speed: fix.Speed}
	if g.updates != nil {
		g.updates.PositionAccepted(ctx, update)
	}
	g.logger.Debug().
		Float64("lat", fix.Latitude).
		Float64("lon", fix.Longitude).
		Float64("variance", update.Variance).
		Msg("fix accepted")
}

// HandleSample folds one accelerometer sample into the motion window. The
// tracker synchronizes internally, so sample ingestion never contends with
// fix handling on the guard lock.
func (g *Guard) HandleSample(sample telemetry.AccelSample) {
	g.tracker.Ingest(sample.Magnitude())
}

func (g *Guard) runPoller(ctx context.Context, name string, interval time.Duration, tick scheduler.TickFunc) {
	defer g.wg.Done()
	sched := scheduler.New(scheduler.Options{Interval: interval}, g.logger.With().Str("poller", name).Logger())
	_ = sched.Run(ctx, tick)
}

func (g *Guard) pollMockOracle(ctx context.Context, now time.Time) error {
	enabled, err := g.oracle.IsMockEnabled(ctx)
	if err != nil {
		// Transient oracle failure skips this cycle only.
		g.logger.Warn().Err(err).Msg("mock oracle query failed; cycle skipped")
		return nil
	}
	if !enabled {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.monitoring {
		return nil
	}
	g.emitFraud(ctx, now, ReasonOracleMock)
	return nil
}

func (g *Guard) pollTerritory(ctx context.Context, now time.Time) error {
	if g.cfg.Boundary.Len() == 0 {
		return nil
	}

	fix, ok, err := g.positions.LastKnown(ctx)
	if err != nil {
		g.logger.Warn().Err(err).Msg("last-known position query failed; cycle skipped")
		return nil
	}
	if !ok {
		return nil
	}

	inside := g.cfg.Boundary.Contains(geo.Point{Lat: fix.Latitude, Lon: fix.Longitude})

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.monitoring {
		return nil
	}
	if inside {
		if g.outside {
			g.logger.Info().Msg("device re-entered permitted territory")
		}
		g.outside = false
		return nil
	}
	if !g.outside {
		g.outside = true
		g.emitFraud(ctx, now, ReasonOutsideTerritory)
	}
	return nil
}

// emitFraud delivers one fraud signal. Caller holds g.mu.
func (g *Guard) emitFraud(ctx context.Context, at time.Time, reason string) {
	g.logger.Warn().Str("reason", reason).Msg("fraud signal")
	if g.fraud != nil {
		g.fraud.FraudDetected(ctx, at, reason)
	}
}
