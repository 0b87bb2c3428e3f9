package app

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"location-spoof-guard/internal/guard"
	"location-spoof-guard/internal/service"
	"location-spoof-guard/internal/telemetry"
)

// Simulate replays a synthetic telemetry scenario through a real guard and
// prints what it detected. Useful for verifying thresholds without a broker.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	script, ok := scenarios[opts.Scenario]
	if !ok {
		return fmt.Errorf("unknown scenario %q (available: %s)", opts.Scenario, scenarioNames())
	}

	gcfg, err := service.GuardConfig(a.Config)
	if err != nil {
		return err
	}

	src := &scriptedSource{}
	collector := &collectingSinks{}

	g := guard.New(gcfg, src, src, staticOracle(false), collector, collector, a.Logger)
	if err := g.Start(ctx); err != nil {
		return err
	}
	defer g.Stop()

	base := time.Now().UTC().Truncate(time.Second)
	script(src, base)

	fmt.Fprintf(os.Stdout, "scenario: %s\n", opts.Scenario)
	fmt.Fprintf(os.Stdout, "accepted updates: %d\n", len(collector.Updates()))
	frauds := collector.Frauds()
	if len(frauds) == 0 {
		fmt.Fprintln(os.Stdout, "no fraud detected")
		return nil
	}
	for _, f := range frauds {
		fmt.Fprintf(os.Stdout, "fraud at %s: %s\n", f.at.Format(time.RFC3339), f.reason)
	}
	return nil
}

type scenarioFunc func(src *scriptedSource, base time.Time)

var scenarios = map[string]scenarioFunc{
	"clean": func(src *scriptedSource, base time.Time) {
		src.walkAccel(base, 12)
		for i := 0; i < 5; i++ {
			src.fix(telemetry.Fix{
				Latitude:  52.5200 + float64(i)*0.00001,
				Longitude: 13.4050 + float64(i)*0.00001,
				Altitude:  34.0 + float64(i)*0.1,
				Accuracy:  8.0 + float64(i)*0.1,
				Speed:     1.3,
				Time:      base.Add(time.Duration(i) * time.Second),
			})
		}
	},
	"os-mock": func(src *scriptedSource, base time.Time) {
		src.fix(telemetry.Fix{
			Latitude: 52.52, Longitude: 13.405, Altitude: 34, Accuracy: 8,
			Time: base, MockedByOS: true,
		})
	},
	"altitude-zero": func(src *scriptedSource, base time.Time) {
		src.fix(telemetry.Fix{
			Latitude: 52.52, Longitude: 13.405, Altitude: 0, Accuracy: 8,
			Speed: 1.0, Time: base,
		})
	},
	"teleport": func(src *scriptedSource, base time.Time) {
		src.fix(telemetry.Fix{
			Latitude: 52.5200, Longitude: 13.4050, Altitude: 34, Accuracy: 8,
			Speed: 1.0, Time: base,
		})
		// Roughly 11 km north one second later.
		src.fix(telemetry.Fix{
			Latitude: 52.6200, Longitude: 13.4051, Altitude: 35, Accuracy: 9,
			Speed: 1.0, Time: base.Add(time.Second),
		})
	},
	"static-position": func(src *scriptedSource, base time.Time) {
		for i := 0; i < 7; i++ {
			src.fix(telemetry.Fix{
				Latitude: 52.52, Longitude: 13.405, Altitude: 34,
				Accuracy: 8.0 + float64(i)*0.1, Speed: 0,
				Time: base.Add(time.Duration(i) * time.Second),
			})
		}
	},
	"static-accuracy": func(src *scriptedSource, base time.Time) {
		for i := 0; i < 10; i++ {
			src.fix(telemetry.Fix{
				Latitude:  52.5200 + float64(i)*0.00001,
				Longitude: 13.4050,
				Altitude:  34.0 + float64(i)*0.1,
				Accuracy:  8.0, Speed: 1.0,
				Time: base.Add(time.Duration(i) * time.Second),
			})
		}
	},
	"joystick-walk": func(src *scriptedSource, base time.Time) {
		// Perfectly steady accelerometer while GPS claims walking speed.
		for i := 0; i < 12; i++ {
			src.sample(telemetry.AccelSample{X: 0, Y: 0, Z: 9.81, Time: base})
		}
		src.fix(telemetry.Fix{
			Latitude: 52.52, Longitude: 13.405, Altitude: 34, Accuracy: 8,
			Speed: 1.2, Time: base,
		})
	},
}

func scenarioNames() string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// scriptedSource feeds scripted fixes and samples into whatever handlers
// the guard subscribed.
type scriptedSource struct {
	mu         sync.Mutex
	fixHandler func(telemetry.Fix)
	accHandler func(telemetry.AccelSample)
	last       telemetry.Fix
	haveLast   bool
}

func (s *scriptedSource) RequestPermission(context.Context) (bool, error) {
	return true, nil
}

func (s *scriptedSource) SubscribeFixes(_ context.Context, handler func(telemetry.Fix)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixHandler = handler
	return func() {}, nil
}

func (s *scriptedSource) SubscribeSamples(_ context.Context, handler func(telemetry.AccelSample)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accHandler = handler
	return func() {}, nil
}

func (s *scriptedSource) LastKnown(context.Context) (telemetry.Fix, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.haveLast, nil
}

func (s *scriptedSource) fix(fix telemetry.Fix) {
	s.mu.Lock()
	handler := s.fixHandler
	s.last = fix
	s.haveLast = true
	s.mu.Unlock()
	if handler != nil {
		handler(fix)
	}
}

func (s *scriptedSource) sample(sample telemetry.AccelSample) {
	s.mu.Lock()
	handler := s.accHandler
	s.mu.Unlock()
	if handler != nil {
		handler(sample)
	}
}

func (s *scriptedSource) walkAccel(base time.Time, n int) {
	for i := 0; i < n; i++ {
		// Alternating magnitudes mimic a step cadence.
		z := 9.81
		if i%2 == 0 {
			z = 11.2
		}
		s.sample(telemetry.AccelSample{X: 0.4, Y: 0.2, Z: z, Time: base.Add(time.Duration(i) * 100 * time.Millisecond)})
	}
}

type staticOracle bool

func (o staticOracle) IsMockEnabled(context.Context) (bool, error) {
	return bool(o), nil
}

type fraudRecord struct {
	at     time.Time
	reason string
}

type collectingSinks struct {
	mu      sync.Mutex
	frauds  []fraudRecord
	updates []guard.Update
}

func (c *collectingSinks) FraudDetected(_ context.Context, at time.Time, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frauds = append(c.frauds, fraudRecord{at: at, reason: reason})
}

func (c *collectingSinks) PositionAccepted(_ context.Context, update guard.Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, update)
}

func (c *collectingSinks) Frauds() []fraudRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]fraudRecord, len(c.frauds))
	copy(out, c.frauds)
	return out
}

func (c *collectingSinks) Updates() []guard.Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]guard.Update, len(c.updates))
	copy(out, c.updates)
	return out
}

var (
	_ guard.PositionSource      = (*scriptedSource)(nil)
	_ guard.AccelerometerSource = (*scriptedSource)(nil)
	_ guard.MockOracle          = (staticOracle)(false)
	_ guard.FraudSink           = (*collectingSinks)(nil)
	_ guard.UpdateSink          = (*collectingSinks)(nil)
)
