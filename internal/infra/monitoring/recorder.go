package monitoring

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	domain "github.com/clinimeta/dicomflow/internal/domain/monitoring"
)

// Recorder implements the metrics/log collaborator port: counters keyed by
// name plus sorted dimensions, and structured operation records via slog.
type Recorder struct {
	logger *slog.Logger

	mu       sync.RWMutex
	counters map[string]float64
}

func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		logger:   logger,
		counters: make(map[string]float64),
	}
}

// Count adds value to the named counter. Dimensions become part of the
// counter key so tagged series stay separate.
func (r *Recorder) Count(name string, value float64, dims map[string]string) {
	key := counterKey(name, dims)
	r.mu.Lock()
	r.counters[key] += value
	r.mu.Unlock()
}

// Log emits one structured operation record.
func (r *Recorder) Log(rec domain.Record) {
	attrs := make([]any, 0, 2+2*len(rec.Details))
	attrs = append(attrs, "operation", rec.Operation, "status", rec.Status)
	for k, v := range rec.Details {
		attrs = append(attrs, k, v)
	}
	if rec.Status == "error" || rec.Status == "failed" {
		r.logger.Warn("pipeline event", attrs...)
		return
	}
	r.logger.Info("pipeline event", attrs...)
}

// Snapshot returns a copy of all counters.
func (r *Recorder) Snapshot() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.counters))
	for k, v := range r.counters {
		out[k] = v
	}
	return out
}

func counterKey(name string, dims map[string]string) string {
	if len(dims) == 0 {
		return name
	}
	parts := make([]string, 0, len(dims))
	for k, v := range dims {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}

var _ domain.Recorder = (*Recorder)(nil)
