package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	insertFraudEventSQL = `INSERT INTO fraud_events (
        detected_at,
        reason
    ) VALUES (
        $1,$2
    )
    RETURNING id, detected_at, reason, created_at;`

	listRecentFraudEventsSQL = `SELECT
        id,
        detected_at,
        reason,
        created_at
    FROM fraud_events
    ORDER BY detected_at DESC
    LIMIT $1;`

	insertPositionSampleSQL = `INSERT INTO position_samples (
        fix_ts,
        latitude,
        longitude,
        altitude,
        accuracy,
        speed,
        motion_variance
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    );`

	listSamplesBetweenSQL = `SELECT
        fix_ts,
        latitude,
        longitude,
        altitude,
        accuracy,
        speed,
        motion_variance,
        created_at
    FROM position_samples
    WHERE fix_ts >= $1
      AND fix_ts < $2
    ORDER BY fix_ts;`

	deleteFraudEventsBeforeSQL = `DELETE FROM fraud_events WHERE created_at < $1;`
)

// FraudEventStore persists and lists fraud signals.
type FraudEventStore interface {
	InsertFraudEvent(ctx context.Context, event FraudEvent) (FraudEvent, error)
	ListRecentFraudEvents(ctx context.Context, limit int) ([]FraudEvent, error)
}

// PositionSampleStore persists and lists accepted fixes.
type PositionSampleStore interface {
	InsertPositionSample(ctx context.Context, sample PositionSample) error
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]PositionSample, error)
}

// Store is the PostgreSQL-backed audit repository.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an initialised pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertFraudEvent persists one fraud signal.
func (s *Store) InsertFraudEvent(ctx context.Context, event FraudEvent) (FraudEvent, error) {
	if s.pool == nil {
		return FraudEvent{}, ErrNotConfigured
	}

	row := s.pool.QueryRow(ctx, insertFraudEventSQL, event.At, event.Reason)
	var stored FraudEvent
	if err := row.Scan(&stored.ID, &stored.At, &stored.Reason, &stored.CreatedAt); err != nil {
		return FraudEvent{}, fmt.Errorf("insert fraud event: %w", err)
	}
	return stored, nil
}

// ListRecentFraudEvents returns the newest events first.
func (s *Store) ListRecentFraudEvents(ctx context.Context, limit int) ([]FraudEvent, error) {
	if s.pool == nil {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, listRecentFraudEventsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list fraud events: %w", err)
	}
	defer rows.Close()

	var events []FraudEvent
	for rows.Next() {
		var e FraudEvent
		if err := rows.Scan(&e.ID, &e.At, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fraud event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertPositionSample persists one accepted fix.
func (s *Store) InsertPositionSample(ctx context.Context, sample PositionSample) error {
	if s.pool == nil {
		return ErrNotConfigured
	}

	_, err := s.pool.Exec(ctx, insertPositionSampleSQL,
		sample.At,
		sample.Latitude,
		sample.Longitude,
		sample.Altitude,
		sample.Accuracy,
		sample.Speed,
		sample.Variance,
	)
	if err != nil {
		return fmt.Errorf("insert position sample: %w", err)
	}
	return nil
}

// ListSamplesBetween returns accepted fixes in [from, to), oldest first.
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]PositionSample, error) {
	if s.pool == nil {
		return nil, ErrNotConfigured
	}

	rows, err := s.pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("list position samples: %w", err)
	}
	defer rows.Close()

	var samples []PositionSample
	for rows.Next() {
		var p PositionSample
		if err := rows.Scan(&p.At, &p.Latitude, &p.Longitude, &p.Altitude, &p.Accuracy, &p.Speed, &p.Variance, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan position sample: %w", err)
		}
		samples = append(samples, p)
	}
	return samples, rows.Err()
}

// DeleteFraudEventsBefore prunes old audit rows.
func (s *Store) DeleteFraudEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.pool == nil {
		return 0, ErrNotConfigured
	}

	tag, err := s.pool.Exec(ctx, deleteFraudEventsBeforeSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete fraud events: %w", err)
	}
	return tag.RowsAffected(), nil
}

var (
	_ FraudEventStore     = (*Store)(nil)
	_ PositionSampleStore = (*Store)(nil)
)
