package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/clinimeta/dicomflow/internal/infra/monitoring"
)

// httpMetrics stores request-level counters.
type httpMetrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	StartTime          time.Time
}

var globalMetrics = &httpMetrics{StartTime: time.Now()}

// Metrics tracks request counters around each handler.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
		atomic.AddUint64(&globalMetrics.RequestsInProgress, 1)
		defer atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0))

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			atomic.AddUint64(&globalMetrics.RequestsSuccess, 1)
		} else {
			atomic.AddUint64(&globalMetrics.RequestsFailed, 1)
		}
	})
}

// MetricsHandler serves HTTP counters, runtime stats, and the pipeline
// recorder's counters as one JSON document.
func MetricsHandler(rec *monitoring.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		body := map[string]any{
			"requests_total":       atomic.LoadUint64(&globalMetrics.RequestsTotal),
			"requests_in_progress": atomic.LoadUint64(&globalMetrics.RequestsInProgress),
			"requests_success":     atomic.LoadUint64(&globalMetrics.RequestsSuccess),
			"requests_failed":      atomic.LoadUint64(&globalMetrics.RequestsFailed),
			"uptime_seconds":       time.Since(globalMetrics.StartTime).Seconds(),
			"goroutines":           runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_bytes": m.Alloc,
				"sys_bytes":   m.Sys,
				"num_gc":      m.NumGC,
			},
		}
		if rec != nil {
			body["pipeline"] = rec.Snapshot()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}
}
