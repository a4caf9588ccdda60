package executions

import "context"

// Repository is the execution-tracking persistence port.
type Repository interface {
	// Save inserts or upserts the full execution record.
	Save(ctx context.Context, e *Execution) error
	Get(ctx context.Context, id ID) (*Execution, error)
	Latest(ctx context.Context, limit int) ([]*Execution, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Execution, error)
}
