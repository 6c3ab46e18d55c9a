// Package httpapi implements the public-facing HTTP server for the ingest
// pipeline (spec.md §6): telemetry submission, queue status, and paginated
// read-through endpoints. It translates between HTTP and the ingest
// facade / stores; it holds no business logic of its own.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"ingestpipe/internal/alert"
	"ingestpipe/internal/ingest"
	"ingestpipe/internal/logging"
	"ingestpipe/internal/metrics"
	"ingestpipe/internal/model"
	"ingestpipe/internal/queue"
	"ingestpipe/internal/telemetrystore"
)

// Server wires the ingest facade and the read-side stores to their
// matching HTTP routes.
type Server struct {
	facade    *ingest.Facade
	queue     *queue.Queue // nil when the queue is disabled
	alerts    alert.Store
	telemetry telemetrystore.Store
	log       logging.Logger
}

// NewServer constructs a Server. q and the stores are held only for the
// read-only status/retrieval endpoints.
func NewServer(facade *ingest.Facade, q *queue.Queue, alerts alert.Store, telemetry telemetrystore.Store, log logging.Logger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	return &Server{facade: facade, queue: q, alerts: alerts, telemetry: telemetry, log: log}
}

// RegisterRoutes mounts the ingest pipeline's routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/telemetry", s.handleSubmit)
	mux.HandleFunc("/queue/status", s.handleQueueStatus)
	mux.HandleFunc("/alerts", s.handleListAlerts)
	mux.HandleFunc("/telemetry/history", s.handleListTelemetry)
	mux.Handle("/metrics", metrics.Handler())
}

type submitRequest struct {
	DeviceID  string  `json:"deviceId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp string  `json:"timestamp"`
}

// handleSubmit is the entry point for POST /telemetry (spec.md §6.1).
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "BAD_INPUT", "error": err.Error()})
		return
	}
	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "BAD_INPUT", "error": "timestamp must be ISO-8601"})
		return
	}

	sample := model.TelemetrySample{
		DeviceID:  req.DeviceID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Timestamp: ts,
	}

	clientAddress := r.RemoteAddr
	out := s.facade.Submit(r.Context(), sample, clientAddress)

	switch out.Status {
	case "ACCEPTED_QUEUED":
		w.Header().Set("X-Request-ID", out.RequestID)
		writeJSON(w, http.StatusAccepted, map[string]any{"requestId": out.RequestID, "status": "queued"})
	case "ACCEPTED_SYNC":
		w.Header().Set("X-Request-ID", out.RequestID)
		writeJSON(w, http.StatusOK, map[string]any{"id": out.PersistedID})
	case "REJECTED":
		s.writeRejection(w, out)
	}
}

func (s *Server) writeRejection(w http.ResponseWriter, out ingest.Outcome) {
	switch out.Reason {
	case ingest.RejectMalformed:
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "BAD_INPUT"})
	case ingest.RejectRateLimitGlobal, ingest.RejectRateLimitAddress, ingest.RejectRateLimitDevice:
		w.Header().Set("Retry-After", strconv.FormatInt(int64(out.RetryAfter/time.Millisecond), 10))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"status":       "TOO_MANY_REQUESTS",
			"limitType":    limitType(out.Reason),
			"retryAfterMs": out.RetryAfter.Milliseconds(),
		})
	case ingest.RejectQueueFull, ingest.RejectStoreUnavailable:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "SERVICE_UNAVAILABLE"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "SERVICE_UNAVAILABLE"})
	}
}

func limitType(reason ingest.RejectReason) string {
	switch reason {
	case ingest.RejectRateLimitGlobal:
		return "GLOBAL"
	case ingest.RejectRateLimitAddress:
		return "ADDRESS"
	case ingest.RejectRateLimitDevice:
		return "DEVICE"
	default:
		return ""
	}
}

// handleQueueStatus serves GET /queue/status (spec.md §6.2).
func (s *Server) handleQueueStatus(w http.ResponseWriter, _ *http.Request) {
	if s.queue == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	snap := s.queue.Status()
	util := 0.0
	if snap.Capacity > 0 {
		util = float64(snap.Depth) / float64(snap.Capacity) * 100
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":            true,
		"currentSize":        snap.Depth,
		"capacity":           snap.Capacity,
		"totalEnqueued":      snap.Enqueued,
		"totalProcessed":     snap.Processed,
		"totalOverflow":      snap.Dropped,
		"utilizationPercent": util,
	})
}

// handleListAlerts serves GET /alerts?deviceId=&limit=&offset= (spec.md §6.3).
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		http.Error(w, "deviceId is required", http.StatusBadRequest)
		return
	}
	limit, offset := pageParams(r)
	alerts, err := s.alerts.ListByDevice(r.Context(), deviceID, limit, offset)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "SERVICE_UNAVAILABLE"})
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// handleListTelemetry serves GET /telemetry/history?deviceId=&limit=&offset=.
func (s *Server) handleListTelemetry(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		http.Error(w, "deviceId is required", http.StatusBadRequest)
		return
	}
	limit, offset := pageParams(r)
	samples, err := s.telemetry.ListForDevice(r.Context(), deviceID, limit, offset)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "SERVICE_UNAVAILABLE"})
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
