package executions

import "time"

// ID identifies one workflow execution.
type ID string

// Status of an execution as visible through the tracking collaborator.
// Consumers must gate on StatusSucceeded, never on output existence alone:
// a partially written artifact may exist mid-pipeline.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Execution is the per-file tracking record. The workflow machine is the
// only writer while the execution is running.
type Execution struct {
	ID              ID        `json:"id"`
	StorageLocation string    `json:"storage_location"`
	Status          Status    `json:"status"`
	CurrentState    string    `json:"current_state"`
	Attempts        int       `json:"attempts"`
	OutputKey       string    `json:"output_key,omitempty"`
	PseudonymID     string    `json:"pseudonym_id,omitempty"`
	Error           string    `json:"error,omitempty"`
	Cause           string    `json:"cause,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	StoppedAt       time.Time `json:"stopped_at,omitzero"`
}
