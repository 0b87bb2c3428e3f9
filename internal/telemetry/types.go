package telemetry

import (
	"math"
	"time"
)

// Fix is one reported position sample. Immutable once constructed.
type Fix struct {
	Latitude   float64   `json:"lat"`         // decimal degrees
	Longitude  float64   `json:"lon"`         // decimal degrees
	Altitude   float64   `json:"alt"`         // meters above sea level
	Accuracy   float64   `json:"accuracy"`    // horizontal accuracy, meters
	Speed      float64   `json:"speed"`       // m/s over ground
	Time       time.Time `json:"time"`        // when the fix was produced
	MockedByOS bool      `json:"mocked_by_os"` // platform-reported spoof flag
}

// AccelSample is one gravity-removed 3-axis accelerometer reading.
type AccelSample struct {
	X    float64   `json:"accel_x"` // m/s²
	Y    float64   `json:"accel_y"`
	Z    float64   `json:"accel_z"`
	Time time.Time `json:"time"`
}

// Magnitude collapses the sample into a scalar acceleration magnitude.
func (s AccelSample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}
