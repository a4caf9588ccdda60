package monitoring

import "time"

// Record is one structured operation log entry.
type Record struct {
	Timestamp time.Time
	Operation string
	Status    string
	Details   map[string]string
}

// Recorder is the metrics/log collaborator port: named counters with
// dimensions plus structured operation records. Implementations must be
// safe for concurrent use; the workflow calls it on every state transition
// and at both terminal states.
type Recorder interface {
	Count(name string, value float64, dims map[string]string)
	Log(rec Record)
}

// Nop discards everything. Useful as a default and in tests.
type Nop struct{}

func (Nop) Count(string, float64, map[string]string) {}
func (Nop) Log(Record)                               {}
