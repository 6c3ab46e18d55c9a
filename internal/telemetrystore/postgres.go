package telemetrystore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ingestpipe/internal/model"
)

// Postgres schema (reference), following the teacher's persistence.go
// comment-as-schema convention:
//
// CREATE TABLE IF NOT EXISTS telemetry_samples (
//   id          TEXT PRIMARY KEY,
//   device_id   TEXT NOT NULL,
//   latitude    DOUBLE PRECISION NOT NULL,
//   longitude   DOUBLE PRECISION NOT NULL,
//   sample_ts   TIMESTAMPTZ NOT NULL
// );
// CREATE INDEX IF NOT EXISTS idx_telemetry_device_ts ON telemetry_samples(device_id, sample_ts);

// PostgresStore is a *sql.DB-backed Store. Save produces a distinct id
// per call (no upsert), matching spec.md §4.6's "idempotent semantics are
// not required" — every write is an insert.
type PostgresStore struct {
	db             *sql.DB
	defaultTimeout time.Duration
}

// NewPostgresStore wraps db. The caller owns db's lifecycle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, defaultTimeout: 5 * time.Second}
}

func (p *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.defaultTimeout)
}

func (p *PostgresStore) Save(ctx context.Context, sample model.TelemetrySample) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	id := uuid.NewString()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO telemetry_samples(id, device_id, latitude, longitude, sample_ts) VALUES ($1,$2,$3,$4,$5)`,
		id, sample.DeviceID, sample.Latitude, sample.Longitude, sample.Timestamp)
	if err != nil {
		return "", fmt.Errorf("insert telemetry_samples: %w: %w", err, ErrUnavailable)
	}
	return id, nil
}

func (p *PostgresStore) LatestForDevice(ctx context.Context, deviceID string) (model.TelemetrySample, bool, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	row := p.db.QueryRowContext(ctx,
		`SELECT device_id, latitude, longitude, sample_ts FROM telemetry_samples
		 WHERE device_id = $1 ORDER BY sample_ts DESC LIMIT 1`, deviceID)
	var s model.TelemetrySample
	if err := row.Scan(&s.DeviceID, &s.Latitude, &s.Longitude, &s.Timestamp); err != nil {
		if err == sql.ErrNoRows {
			return model.TelemetrySample{}, false, nil
		}
		return model.TelemetrySample{}, false, fmt.Errorf("query latest telemetry: %w: %w", err, ErrUnavailable)
	}
	return s, true, nil
}

func (p *PostgresStore) PriorBefore(ctx context.Context, deviceID string, ts time.Time) (model.TelemetrySample, bool, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	row := p.db.QueryRowContext(ctx,
		`SELECT device_id, latitude, longitude, sample_ts FROM telemetry_samples
		 WHERE device_id = $1 AND sample_ts < $2 ORDER BY sample_ts DESC LIMIT 1`, deviceID, ts)
	var s model.TelemetrySample
	if err := row.Scan(&s.DeviceID, &s.Latitude, &s.Longitude, &s.Timestamp); err != nil {
		if err == sql.ErrNoRows {
			return model.TelemetrySample{}, false, nil
		}
		return model.TelemetrySample{}, false, fmt.Errorf("query prior telemetry: %w: %w", err, ErrUnavailable)
	}
	return s, true, nil
}

func (p *PostgresStore) ListForDevice(ctx context.Context, deviceID string, limit, offset int) ([]model.TelemetrySample, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	rows, err := p.db.QueryContext(ctx,
		`SELECT device_id, latitude, longitude, sample_ts FROM telemetry_samples
		 WHERE device_id = $1 ORDER BY sample_ts ASC LIMIT $2 OFFSET $3`, deviceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list telemetry: %w: %w", err, ErrUnavailable)
	}
	defer rows.Close()
	var out []model.TelemetrySample
	for rows.Next() {
		var s model.TelemetrySample
		if err := rows.Scan(&s.DeviceID, &s.Latitude, &s.Longitude, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scan telemetry row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
