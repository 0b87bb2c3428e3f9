// Package trajectory inspects successive position fixes for patterns that
// genuine satellite positioning does not produce: exact zero altitude,
// physically impossible travel speed, and coordinate or accuracy values
// frozen bit-for-bit across a run of fixes. Real receivers jitter; naive
// injection tools repeat.
package trajectory

import (
	"location-spoof-guard/internal/geo"
	"location-spoof-guard/internal/telemetry"
)

// Verdict is the single outcome of one analysis call. None means no
// heuristic anomaly was observed this call; other checks run independently.
type Verdict int

const (
	None Verdict = iota
	AltitudeZero
	Teleportation
	ArtificialStaticPosition
	StaticAccuracy
)

// String returns the verdict name for logs.
func (v Verdict) String() string {
	switch v {
	case None:
		return "none"
	case AltitudeZero:
		return "altitude_zero"
	case Teleportation:
		return "teleportation"
	case ArtificialStaticPosition:
		return "artificial_static_position"
	case StaticAccuracy:
		return "static_accuracy"
	default:
		return "unknown"
	}
}

// Config holds the analyzer thresholds. All are calibration inputs.
type Config struct {
	MaxPlausibleSpeed   float64 // m/s; 200 ~ 720 km/h
	StaticCoordinateRun int     // identical-coordinate fixes before firing
	StaticAccuracyRun   int     // identical-accuracy fixes before firing
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		MaxPlausibleSpeed:   200,
		StaticCoordinateRun: 5,
		StaticAccuracyRun:   8,
	}
}

// Analyzer is a single-session, single-goroutine sequence analyzer. The
// owning guard serializes calls; arrival order matters because it drives
// the streak counters and elapsed-time deltas.
type Analyzer struct {
	cfg            Config
	last           *telemetry.Fix
	coordStreak    int
	accuracyStreak int
}

// NewAnalyzer constructs an Analyzer for one monitoring session.
func NewAnalyzer(cfg Config) *Analyzer {
	if cfg.MaxPlausibleSpeed <= 0 {
		cfg.MaxPlausibleSpeed = DefaultConfig().MaxPlausibleSpeed
	}
	if cfg.StaticCoordinateRun <= 0 {
		cfg.StaticCoordinateRun = DefaultConfig().StaticCoordinateRun
	}
	if cfg.StaticAccuracyRun <= 0 {
		cfg.StaticAccuracyRun = DefaultConfig().StaticAccuracyRun
	}
	return &Analyzer{cfg: cfg}
}

// Analyze evaluates one fix against the session history and returns exactly
// one verdict. Checks run in fixed order and the first match wins:
// altitude, accuracy freeze, teleportation, static coordinates. The fix
// becomes the new comparison baseline only when no anomaly fired.
func (a *Analyzer) Analyze(fix telemetry.Fix) Verdict {
	// Exact zero altitude never occurs on a live receiver; injected fixes
	// commonly leave the field unset. Independent of history.
	if fix.Altitude == 0.0 {
		return AltitudeZero
	}

	if a.last == nil {
		a.store(fix)
		return None
	}

	if fix.Accuracy == a.last.Accuracy {
		// Streaks count run length, so the fix that opened the run counts.
		if a.accuracyStreak == 0 {
			a.accuracyStreak = 1
		}
		a.accuracyStreak++
		if a.accuracyStreak >= a.cfg.StaticAccuracyRun {
			a.accuracyStreak = 0
			return StaticAccuracy
		}
	} else {
		a.accuracyStreak = 0
	}

	meters := geo.Distance(
		geo.Point{Lat: a.last.Latitude, Lon: a.last.Longitude},
		geo.Point{Lat: fix.Latitude, Lon: fix.Longitude},
	)
	elapsed := int64(fix.Time.Sub(a.last.Time).Seconds())
	if elapsed > 0 {
		if meters/float64(elapsed) > a.cfg.MaxPlausibleSpeed {
			return Teleportation
		}
	}
	// elapsed == 0: same-second fixes are degenerate, not anomalous.

	if fix.Latitude == a.last.Latitude && fix.Longitude == a.last.Longitude {
		if a.coordStreak == 0 {
			a.coordStreak = 1
		}
		a.coordStreak++
		if a.coordStreak >= a.cfg.StaticCoordinateRun {
			// The streak deliberately survives the verdict, so a position
			// that stays frozen keeps re-firing on every further identical
			// fix. The accuracy streak above resets instead and needs a
			// fresh run. See the regression test before changing either.
			return ArtificialStaticPosition
		}
	} else {
		a.coordStreak = 0
	}

	a.store(fix)
	return None
}

// Reset clears all session state. Idempotent; a reset analyzer behaves
// exactly like a fresh one.
func (a *Analyzer) Reset() {
	a.last = nil
	a.coordStreak = 0
	a.accuracyStreak = 0
}

func (a *Analyzer) store(fix telemetry.Fix) {
	f := fix
	a.last = &f
}
