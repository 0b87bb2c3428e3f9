// Package motion correlates reported GPS movement with physical device
// movement. A phone held by a walking human shows accelerometer magnitude
// variance of roughly 0.02-0.1; a device lying perfectly still stays below
// 0.005. Those numbers are calibration inputs, not hardware guarantees:
// a user resting a phone on a table while driving past on GPS will false
// positive, and a rigidly mounted vehicle device can false negative.
package motion

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Config tunes the variance window and joystick-walk thresholds.
type Config struct {
	WindowCapacity int     // max magnitude samples retained (FIFO)
	MinSamples     int     // below this the variance reads 0.0
	WalkSpeed      float64 // m/s; GPS speed above this suggests walking
	WalkVariance   float64 // variance below this suggests a still device
}

// DefaultConfig returns the hand-hold calibration defaults.
func DefaultConfig() Config {
	return Config{
		WindowCapacity: 50,
		MinSamples:     10,
		WalkSpeed:      0.4,
		WalkVariance:   0.02,
	}
}

// Tracker maintains a bounded sliding window of accelerometer magnitudes
// and a cached population variance over it. Ingest runs on the sensor
// goroutine while Variance and IsJoystickWalk run on the fix path, so all
// access is mutex-guarded.
type Tracker struct {
	mu       sync.Mutex
	cfg      Config
	window   []float64
	variance float64
}

// NewTracker constructs a Tracker with the given thresholds.
func NewTracker(cfg Config) *Tracker {
	if cfg.WindowCapacity <= 0 {
		cfg.WindowCapacity = DefaultConfig().WindowCapacity
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultConfig().MinSamples
	}
	return &Tracker{
		cfg:    cfg,
		window: make([]float64, 0, cfg.WindowCapacity),
	}
}

// Ingest appends one magnitude sample, evicting the oldest once the window
// is full, and refreshes the cached variance.
func (t *Tracker) Ingest(magnitude float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.window) == t.cfg.WindowCapacity {
		copy(t.window, t.window[1:])
		t.window = t.window[:len(t.window)-1]
	}
	t.window = append(t.window, magnitude)

	if len(t.window) < t.cfg.MinSamples {
		t.variance = 0
		return
	}
	t.variance = stat.PopVariance(t.window, nil)
}

// Variance returns the cached population variance of the current window,
// or 0.0 before the minimum sample count is met.
func (t *Tracker) Variance() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.variance
}

// SampleCount reports how many magnitudes the window currently holds.
func (t *Tracker) SampleCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.window)
}

// IsJoystickWalk reports "GPS says motion, device is mechanically still":
// the reported speed exceeds the walking threshold while the magnitude
// variance sits below the walking floor. Always false until the minimum
// sample count is met.
func (t *Tracker) IsJoystickWalk(gpsSpeed float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.window) < t.cfg.MinSamples {
		return false
	}
	return gpsSpeed > t.cfg.WalkSpeed && t.variance < t.cfg.WalkVariance
}

// Reset drops the window and cached variance.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window = t.window[:0]
	t.variance = 0
}
