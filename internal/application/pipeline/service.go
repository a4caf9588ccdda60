package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clinimeta/dicomflow/internal/application"
	"github.com/clinimeta/dicomflow/internal/domain/deident"
	"github.com/clinimeta/dicomflow/internal/domain/dicom"
	"github.com/clinimeta/dicomflow/internal/domain/executions"
	"github.com/clinimeta/dicomflow/internal/domain/validation"
	"github.com/clinimeta/dicomflow/internal/workflow"
)

// Service runs the de-identification workflow and tracks executions.
// It is safe for concurrent use; every Start is an independent unit of work.
type Service struct {
	Repo    executions.Repository
	Machine *workflow.Machine
	Clock   application.Clock

	// SuffixFilter gates which object keys trigger a workflow (e.g. ".dcm").
	// Empty means every key matches.
	SuffixFilter string
}

// StartCommand is the input envelope for one execution.
type StartCommand struct {
	StorageLocation string
	PseudonymID     string
}

// Start persists an initial tracking row and drives the workflow to a
// terminal state, recording each transition. The returned execution holds
// the terminal status.
func (s *Service) Start(ctx context.Context, cmd StartCommand) (*executions.Execution, error) {
	if strings.TrimSpace(cmd.StorageLocation) == "" {
		return nil, fmt.Errorf("storage location is required")
	}

	e := &executions.Execution{
		ID:              executions.ID(uuid.New().String()),
		StorageLocation: cmd.StorageLocation,
		Status:          executions.StatusRunning,
		CurrentState:    workflow.StateExtract.String(),
		StartedAt:       s.Clock.Now(),
	}
	if err := s.Repo.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("save initial execution: %w", err)
	}

	machine := *s.Machine
	machine.OnTransition = func(ctx context.Context, ec *workflow.Execution) {
		e.CurrentState = ec.State.String()
		e.Attempts = ec.Attempts
		if ec.LastErr != nil {
			e.Error = errorKind(ec.LastErr)
			e.Cause = ec.LastErr.Error()
		}
		// Transition persistence is best-effort; the run itself is the
		// source of truth until a terminal state.
		_ = s.Repo.Save(ctx, e)
	}

	ec, runErr := machine.Run(ctx, workflow.Input{
		StorageLocation: cmd.StorageLocation,
		PseudonymID:     cmd.PseudonymID,
	})

	e.CurrentState = ec.State.String()
	e.Attempts = ec.Attempts
	e.StoppedAt = s.Clock.Now()
	switch {
	case runErr != nil:
		// cancelled before reaching a terminal state
		e.Status = executions.StatusFailed
		e.Error = "Cancelled"
		e.Cause = runErr.Error()
	case ec.State == workflow.StateSuccess:
		e.Status = executions.StatusSucceeded
		e.OutputKey = ec.OutputKey
		e.PseudonymID = ec.Deident.PseudonymID
		e.Error = ""
		e.Cause = ""
	default:
		e.Status = executions.StatusFailed
		e.Error = fmt.Sprintf("%s: %s", ec.FailedStep, errorKind(ec.LastErr))
		if ec.LastErr != nil {
			e.Cause = ec.LastErr.Error()
		}
	}
	if err := s.Repo.Save(ctx, e); err != nil {
		return e, fmt.Errorf("save terminal execution: %w", err)
	}
	return e, runErr
}

// StartUntilDone runs detached from the caller's request context so a
// webhook response never cancels the pipeline mid-flight.
func (s *Service) StartUntilDone(cmd StartCommand) (*executions.Execution, error) {
	return s.Start(context.Background(), cmd)
}

// Describe returns the tracked state of one execution.
func (s *Service) Describe(ctx context.Context, id executions.ID) (*executions.Execution, error) {
	return s.Repo.Get(ctx, id)
}

// Latest returns the most recent executions.
func (s *Service) Latest(ctx context.Context, limit int) ([]*executions.Execution, error) {
	return s.Repo.Latest(ctx, limit)
}

// ListByStatus filters executions by terminal/running status.
func (s *Service) ListByStatus(ctx context.Context, status executions.Status, limit int) ([]*executions.Execution, error) {
	return s.Repo.ListByStatus(ctx, status, limit)
}

// ObjectCreatedEvent is the S3-style notification envelope delivered by the
// object store when a new raw object lands.
type ObjectCreatedEvent struct {
	Records []ObjectCreatedRecord `json:"Records"`
}

type ObjectCreatedRecord struct {
	S3 struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// TriggerResult reports what one event delivery started.
type TriggerResult struct {
	Matched []string `json:"matched"`
	Skipped []string `json:"skipped,omitempty"`
}

// HandleObjectCreated starts one execution per record whose key matches the
// suffix filter. Delivery is at-least-once: duplicate events for the same
// key start duplicate executions, which the pipeline's determinism makes
// harmless (identical output, same key).
func (s *Service) HandleObjectCreated(ev ObjectCreatedEvent, start func(StartCommand)) TriggerResult {
	var res TriggerResult
	for _, rec := range ev.Records {
		key := rec.S3.Object.Key
		if key == "" {
			continue
		}
		if s.SuffixFilter != "" && !strings.HasSuffix(key, s.SuffixFilter) {
			res.Skipped = append(res.Skipped, key)
			continue
		}
		res.Matched = append(res.Matched, key)
		start(StartCommand{StorageLocation: key})
	}
	return res
}

// errorKind maps an error onto the taxonomy name surfaced via describe.
func errorKind(err error) string {
	if err == nil {
		return ""
	}
	var (
		parseErr      *dicom.ParseError
		missingErr    *dicom.MissingRequiredTagError
		unsupErr      *deident.UnsupportedTagError
		validationErr *validation.Error
	)
	switch {
	case workflow.IsTransient(err):
		return "TransientError"
	case errors.As(err, &parseErr):
		return "ParseError"
	case errors.As(err, &missingErr):
		return "MissingRequiredTagError"
	case errors.As(err, &unsupErr):
		return "UnsupportedTagError"
	case errors.As(err, &validationErr):
		return "ValidationError"
	default:
		return "Error"
	}
}
