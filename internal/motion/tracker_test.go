package motion

import (
	"math"
	"testing"
)

func TestVarianceZeroBeforeMinSamples(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	for i := 0; i < 9; i++ {
		tr.Ingest(9.81)
	}
	if v := tr.Variance(); v != 0 {
		t.Fatalf("variance should be 0.0 below 10 samples, got %f", v)
	}
}

func TestVarianceZeroForIdenticalSamples(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	for i := 0; i < 50; i++ {
		tr.Ingest(1.5)
	}
	if v := tr.Variance(); v != 0 {
		t.Fatalf("identical samples should give exactly 0.0 variance, got %f", v)
	}
}

func TestVariancePositiveForOscillation(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			tr.Ingest(1.0)
		} else {
			tr.Ingest(2.0)
		}
	}
	if v := tr.Variance(); v <= 0 {
		t.Fatalf("oscillating samples should give positive variance, got %f", v)
	}
	// Population variance of a balanced 1.0/2.0 oscillation is exactly 0.25.
	if v := tr.Variance(); math.Abs(v-0.25) > 1e-9 {
		t.Fatalf("expected variance 0.25, got %f", v)
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowCapacity = 5
	cfg.MinSamples = 2
	tr := NewTracker(cfg)

	// Noisy prefix pushed fully out by a constant tail.
	for _, m := range []float64{0, 10, 0, 10, 0} {
		tr.Ingest(m)
	}
	for i := 0; i < 5; i++ {
		tr.Ingest(3.0)
	}
	if got := tr.SampleCount(); got != 5 {
		t.Fatalf("window should hold 5 samples, got %d", got)
	}
	if v := tr.Variance(); v != 0 {
		t.Fatalf("noisy samples should have been evicted, variance %f", v)
	}
}

func TestIsJoystickWalk(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	if tr.IsJoystickWalk(2.0) {
		t.Fatal("no samples yet; joystick walk must not trigger")
	}

	for i := 0; i < 20; i++ {
		tr.Ingest(9.81) // perfectly still device
	}
	if !tr.IsJoystickWalk(1.4) {
		t.Fatal("fast GPS over a still device should trigger")
	}
	if tr.IsJoystickWalk(0.3) {
		t.Fatal("speed below the walking threshold must not trigger")
	}
}

func TestIsJoystickWalkQuietWithRealJitter(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	for i := 0; i < 50; i++ {
		// Hand-hold jitter: alternate +-0.5 around gravity, variance 0.25.
		if i%2 == 0 {
			tr.Ingest(9.31)
		} else {
			tr.Ingest(10.31)
		}
	}
	if tr.IsJoystickWalk(1.4) {
		t.Fatal("jittery device should pass the liveness check")
	}
}

func TestResetClearsWindow(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	for i := 0; i < 50; i++ {
		tr.Ingest(float64(i))
	}
	tr.Reset()
	if v := tr.Variance(); v != 0 {
		t.Fatalf("variance after reset should be 0.0, got %f", v)
	}
	if n := tr.SampleCount(); n != 0 {
		t.Fatalf("window after reset should be empty, got %d", n)
	}
	// The minimum sample gate applies again after reset.
	for i := 0; i < 9; i++ {
		tr.Ingest(1.0)
	}
	if tr.IsJoystickWalk(2.0) {
		t.Fatal("joystick walk must stay quiet until min samples met again")
	}
}
