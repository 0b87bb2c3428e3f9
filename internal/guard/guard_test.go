package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"location-spoof-guard/internal/geo"
	"location-spoof-guard/internal/telemetry"
)

type fakePositions struct {
	mu         sync.Mutex
	granted    bool
	permErr    error
	handler    func(telemetry.Fix)
	lastKnown  *telemetry.Fix
	lastErr    error
	subscribed bool
}

func (f *fakePositions) RequestPermission(ctx context.Context) (bool, error) {
	return f.granted, f.permErr
}

func (f *fakePositions) SubscribeFixes(ctx context.Context, handler func(telemetry.Fix)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	f.subscribed = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.subscribed = false
	}, nil
}

func (f *fakePositions) LastKnown(ctx context.Context) (telemetry.Fix, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastErr != nil {
		return telemetry.Fix{}, false, f.lastErr
	}
	if f.lastKnown == nil {
		return telemetry.Fix{}, false, nil
	}
	return *f.lastKnown, true, nil
}

func (f *fakePositions) push(fix telemetry.Fix) {
	f.mu.Lock()
	handler := f.handler
	subscribed := f.subscribed
	f.mu.Unlock()
	if subscribed && handler != nil {
		handler(fix)
	}
}

type fakeOracle struct {
	mu      sync.Mutex
	enabled bool
	err     error
}

func (f *fakeOracle) IsMockEnabled(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled, f.err
}

type recordingSinks struct {
	mu      sync.Mutex
	frauds  []string
	updates []Update
}

func (r *recordingSinks) FraudDetected(ctx context.Context, at time.Time, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frauds = append(r.frauds, reason)
}

func (r *recordingSinks) PositionAccepted(ctx context.Context, update Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
}

func (r *recordingSinks) fraudCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frauds)
}

func (r *recordingSinks) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *recordingSinks) lastFraud() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frauds) == 0 {
		return ""
	}
	return r.frauds[len(r.frauds)-1]
}

var testTime = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func goodFix(i int) telemetry.Fix {
	return telemetry.Fix{
		Latitude:  48.2 + float64(i)*0.00001,
		Longitude: 16.37,
		Altitude:  170,
		Accuracy:  4 + float64(i)*0.1,
		Speed:     1.1,
		Time:      testTime.Add(time.Duration(i) * time.Second),
	}
}

func newTestGuard(t *testing.T, cfg Config, positions *fakePositions, oracle MockOracle, sinks *recordingSinks) *Guard {
	t.Helper()
	g := New(cfg, positions, nil, oracle, sinks, sinks, zerolog.Nop())
	t.Cleanup(g.Stop)
	return g
}

func TestPermissionDeniedLeavesGuardIdle(t *testing.T) {
	positions := &fakePositions{granted: false}
	sinks := &recordingSinks{}
	g := newTestGuard(t, DefaultConfig(), positions, nil, sinks)

	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("declined start must not error: %v", err)
	}
	if g.Monitoring() {
		t.Fatal("guard must remain idle after denied permission")
	}
	if positions.subscribed {
		t.Fatal("no subscription should be made without permission")
	}
}

func TestPermissionErrorSurfaces(t *testing.T) {
	positions := &fakePositions{permErr: errors.New("platform unavailable")}
	g := newTestGuard(t, DefaultConfig(), positions, nil, &recordingSinks{})
	if err := g.Start(context.Background()); err == nil {
		t.Fatal("permission transport failure should surface as an error")
	}
}

func TestStartIsIdempotentWhileMonitoring(t *testing.T) {
	positions := &fakePositions{granted: true}
	g := newTestGuard(t, DefaultConfig(), positions, nil, &recordingSinks{})

	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("second start must be a no-op: %v", err)
	}
	if !g.Monitoring() {
		t.Fatal("guard should be monitoring")
	}
}

func TestAcceptedFixReachesUpdateSink(t *testing.T) {
	positions := &fakePositions{granted: true}
	sinks := &recordingSinks{}
	g := newTestGuard(t, DefaultConfig(), positions, nil, sinks)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	positions.push(goodFix(0))
	if got := sinks.updateCount(); got != 1 {
		t.Fatalf("expected 1 accepted update, got %d", got)
	}
	if got := sinks.fraudCount(); got != 0 {
		t.Fatalf("expected no fraud signals, got %d", got)
	}
}

func TestOSMockFlagShortCircuits(t *testing.T) {
	positions := &fakePositions{granted: true}
	sinks := &recordingSinks{}
	g := newTestGuard(t, DefaultConfig(), positions, nil, sinks)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	mocked := goodFix(0)
	mocked.Altitude = 0 // would also trip the analyzer, but must never reach it
	mocked.MockedByOS = true
	positions.push(mocked)

	if got := sinks.lastFraud(); got != ReasonOSMock {
		t.Fatalf("expected OS mock reason, got %q", got)
	}
	if got := sinks.updateCount(); got != 0 {
		t.Fatalf("mocked fix must not be accepted, got %d updates", got)
	}

	// The discarded fix must not have seeded the analyzer: the next good
	// fix is a first fix and passes.
	positions.push(goodFix(1))
	if got := sinks.updateCount(); got != 1 {
		t.Fatalf("fix after discarded mock should be accepted, got %d updates", got)
	}
}

func TestTrajectoryVerdictEmitsFraud(t *testing.T) {
	positions := &fakePositions{granted: true}
	sinks := &recordingSinks{}
	g := newTestGuard(t, DefaultConfig(), positions, nil, sinks)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	bad := goodFix(0)
	bad.Altitude = 0
	positions.push(bad)

	if got := sinks.lastFraud(); got != ReasonForVerdict(1) { // AltitudeZero
		t.Fatalf("expected altitude-zero reason, got %q", got)
	}
	if got := sinks.updateCount(); got != 0 {
		t.Fatalf("anomalous fix must not be accepted, got %d updates", got)
	}
}

func TestJoystickWalkPrecedesTrajectory(t *testing.T) {
	positions := &fakePositions{granted: true}
	sinks := &recordingSinks{}
	g := newTestGuard(t, DefaultConfig(), positions, nil, sinks)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Perfectly still device.
	for i := 0; i < 20; i++ {
		g.HandleSample(telemetry.AccelSample{X: 0, Y: 0, Z: 9.81, Time: testTime})
	}

	// A fix that would also trip the altitude check: liveness wins.
	fix := goodFix(0)
	fix.Altitude = 0
	fix.Speed = 2.0
	positions.push(fix)

	if got := sinks.lastFraud(); got != ReasonJoystickWalk {
		t.Fatalf("expected joystick-walk reason, got %q", got)
	}
}

func TestTerritoryPollGatesAndSignals(t *testing.T) {
	ring := []geo.Point{
		{Lat: 48.0, Lon: 16.0},
		{Lat: 48.0, Lon: 17.0},
		{Lat: 49.0, Lon: 17.0},
		{Lat: 49.0, Lon: 16.0},
		{Lat: 48.0, Lon: 16.0},
	}
	boundary, err := geo.NewPolygon(ring)
	if err != nil {
		t.Fatalf("polygon: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Boundary = boundary
	cfg.TerritoryPollInterval = 10 * time.Millisecond

	outside := telemetry.Fix{Latitude: 50.1, Longitude: 14.4, Altitude: 200, Time: testTime}
	positions := &fakePositions{granted: true, lastKnown: &outside}
	sinks := &recordingSinks{}
	g := newTestGuard(t, cfg, positions, nil, sinks)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, func() bool { return sinks.lastFraud() == ReasonOutsideTerritory })

	// While gated, fixes are silently discarded: no update, no new fraud.
	before := sinks.fraudCount()
	positions.push(goodFix(0))
	if got := sinks.updateCount(); got != 0 {
		t.Fatalf("gated fix must be discarded, got %d updates", got)
	}

	// Back inside: the gate clears without an extra signal and fixes flow.
	inside := telemetry.Fix{Latitude: 48.5, Longitude: 16.5, Altitude: 200, Time: testTime}
	positions.mu.Lock()
	positions.lastKnown = &inside
	positions.mu.Unlock()

	waitFor(t, func() bool {
		positions.push(goodFix(1))
		return sinks.updateCount() > 0
	})
	if got := sinks.fraudCount(); got != before {
		t.Fatalf("re-entry must not add fraud signals: %d -> %d", before, got)
	}
}

func TestMockOraclePollEmitsFraud(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MockPollInterval = 10 * time.Millisecond

	positions := &fakePositions{granted: true}
	oracle := &fakeOracle{enabled: true}
	sinks := &recordingSinks{}
	g := newTestGuard(t, cfg, positions, oracle, sinks)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, func() bool { return sinks.lastFraud() == ReasonOracleMock })
}

func TestMockOracleErrorSkipsCycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MockPollInterval = 5 * time.Millisecond

	positions := &fakePositions{granted: true}
	oracle := &fakeOracle{err: errors.New("oracle offline")}
	sinks := &recordingSinks{}
	g := newTestGuard(t, cfg, positions, oracle, sinks)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := sinks.fraudCount(); got != 0 {
		t.Fatalf("oracle failures must not signal fraud, got %d", got)
	}
	if !g.Monitoring() {
		t.Fatal("guard must keep monitoring through oracle failures")
	}
}

func TestStopLeavesNoResidualActivity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MockPollInterval = 5 * time.Millisecond
	cfg.TerritoryPollInterval = 5 * time.Millisecond

	outside := telemetry.Fix{Latitude: 0, Longitude: 0, Altitude: 1, Time: testTime}
	positions := &fakePositions{granted: true, lastKnown: &outside}
	oracle := &fakeOracle{enabled: true}
	sinks := &recordingSinks{}
	g := newTestGuard(t, cfg, positions, oracle, sinks)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	g.Stop()
	if g.Monitoring() {
		t.Fatal("guard should be idle after stop")
	}

	frauds := sinks.fraudCount()
	updates := sinks.updateCount()
	positions.push(goodFix(0))
	time.Sleep(50 * time.Millisecond)

	if got := sinks.fraudCount(); got != frauds {
		t.Fatalf("fraud signals after stop: %d -> %d", frauds, got)
	}
	if got := sinks.updateCount(); got != updates {
		t.Fatalf("updates after stop: %d -> %d", updates, got)
	}

	g.Stop() // safe from idle
}

func TestStopResetsSessionState(t *testing.T) {
	positions := &fakePositions{granted: true}
	sinks := &recordingSinks{}
	g := newTestGuard(t, DefaultConfig(), positions, nil, sinks)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Build up coordinate streak state.
	static := goodFix(0)
	static.Accuracy = 4
	for i := 0; i < 4; i++ {
		f := static
		f.Accuracy = 4 + float64(i)
		f.Time = testTime.Add(time.Duration(i) * time.Second)
		positions.push(f)
	}

	g.Stop()
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}

	// A fresh session has no streak: the same static fix passes again.
	frauds := sinks.fraudCount()
	f := static
	f.Time = testTime.Add(time.Minute)
	positions.push(f)
	if got := sinks.fraudCount(); got != frauds {
		t.Fatalf("restarted session must not inherit streaks: %d -> %d", frauds, got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
