package storage

import (
	"time"
)

// FraudEvent is one persisted fraud signal.
type FraudEvent struct {
	ID        int64
	At        time.Time
	Reason    string
	CreatedAt time.Time
}

// PositionSample is one persisted accepted fix with its liveness context.
type PositionSample struct {
	At        time.Time
	Latitude  float64
	Longitude float64
	Altitude  float64
	Accuracy  float64
	Speed     float64
	Variance  float64
	CreatedAt time.Time
}
