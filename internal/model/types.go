// Package model holds the value types shared across the ingest and alert
// pipeline: telemetry samples, their ingest envelope, and alerts.
package model

import (
	"math"
	"time"
)

// TelemetrySample is one timestamped location reading from one device.
// It flows by value from the facade through the queue, the worker, and
// the processors; it is never mutated after construction.
type TelemetrySample struct {
	DeviceID  string
	Latitude  float64
	Longitude float64
	Timestamp time.Time
}

// Valid reports whether the sample satisfies the structural invariants
// required before it may be enqueued: non-empty device id, finite
// coordinates, and a non-zero timestamp.
func (s TelemetrySample) Valid() bool {
	if s.DeviceID == "" {
		return false
	}
	if s.Timestamp.IsZero() {
		return false
	}
	return !math.IsNaN(s.Latitude) && !math.IsInf(s.Latitude, 0) &&
		!math.IsNaN(s.Longitude) && !math.IsInf(s.Longitude, 0)
}

// Envelope wraps a sample with the ingest-side metadata assigned by the
// facade: a unique request id for tracing and the instant it was queued.
type Envelope struct {
	Sample    TelemetrySample
	RequestID string
	QueuedAt  time.Time
}

// AlertType enumerates the kinds of alert the analytic processors emit.
type AlertType string

const (
	AlertTypeAnomaly  AlertType = "ANOMALY"
	AlertTypeGeofence AlertType = "GEOFENCE"
	AlertTypeSpeed    AlertType = "SPEED"
	AlertTypeSystem   AlertType = "SYSTEM"
)

// Severity enumerates alert severities, ordered least to most urgent.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is the unit of analytic output. Fingerprint defines its identity
// for deduplication; it is derived, never chosen, by the alert engine.
type Alert struct {
	ID            string
	DeviceID      string
	AlertType     AlertType
	Severity      Severity
	Message       string
	Latitude      float64
	Longitude     float64
	HasCoords     bool
	ProcessorName string
	Fingerprint   string
	Metadata      string
	CreatedAt     time.Time
}
