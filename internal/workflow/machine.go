package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/clinimeta/dicomflow/internal/domain/deident"
	"github.com/clinimeta/dicomflow/internal/domain/dicom"
	"github.com/clinimeta/dicomflow/internal/domain/monitoring"
	"github.com/clinimeta/dicomflow/internal/domain/objects"
)

// State enumerates the machine's states explicitly; dispatch is one typed
// handler per state, never a string-keyed table.
type State int

const (
	StateExtract State = iota
	StateCheckExtract
	StateValidate
	StateCheckValidate
	StateDeidentify
	StateCheckDeidentify
	StatePublishSuccess
	StateHandleError
	StatePublishFailure
	StateSuccess
	StateFailure
)

var stateNames = map[State]string{
	StateExtract:         "Extract",
	StateCheckExtract:    "CheckExtract",
	StateValidate:        "Validate",
	StateCheckValidate:   "CheckValidate",
	StateDeidentify:      "Deidentify",
	StateCheckDeidentify: "CheckDeidentify",
	StatePublishSuccess:  "PublishSuccess",
	StateHandleError:     "HandleError",
	StatePublishFailure:  "PublishFailure",
	StateSuccess:         "Success",
	StateFailure:         "Failure",
}

func (s State) String() string { return stateNames[s] }

// Terminal reports whether the state ends the execution.
func (s State) Terminal() bool { return s == StateSuccess || s == StateFailure }

// Input is the execution envelope derived from a trigger event.
type Input struct {
	// StorageLocation is the raw object's key in the store.
	StorageLocation string
	// PseudonymID optionally overrides the derived pseudonymous identifier.
	PseudonymID string
}

// StepResult is the discriminated envelope every step invocation is
// normalized into. The machine advances only on the explicit OK
// discriminator, never on the absence of an error.
type StepResult struct {
	OK  bool
	Err error
}

// Execution is the per-file workflow context. It is created by Run, mutated
// only by the machine, and discarded once a terminal state is reached;
// durable tracking lives behind the OnTransition hook.
type Execution struct {
	Input    Input
	State    State
	Attempts int
	LastErr  error

	// FailedStep names the step whose result routed to HandleError.
	FailedStep string

	// step outputs
	Dataset   *dicom.Dataset
	Record    *dicom.MetadataRecord
	Deident   deident.Result
	OutputKey string

	last StepResult
}

type stepFunc func(ctx context.Context, ec *Execution) error

// Machine sequences Extract → Validate → Deidentify with per-step
// retry/backoff and failure routing. It holds only immutable configuration
// and collaborator ports, so any number of executions may run concurrently.
type Machine struct {
	Store        objects.Store
	Deidentifier *deident.Deidentifier
	Recorder     monitoring.Recorder

	// OutputPrefix is prepended to the input's base name to form the
	// cleaned artifact key.
	OutputPrefix string

	// MaxAttempts bounds transient retries per step (default 3).
	MaxAttempts int
	// RetryBase is the first backoff delay; it doubles per attempt
	// (default 2s → 4s → 8s).
	RetryBase time.Duration
	// StepTimeout is the per-step wall-clock budget; exceeding it counts as
	// a transient failure (default 30s).
	StepTimeout time.Duration

	// OnTransition, when set, is called after every state transition so the
	// caller can persist tracking state.
	OnTransition func(ctx context.Context, ec *Execution)
}

func (m *Machine) maxAttempts() int {
	if m.MaxAttempts > 0 {
		return m.MaxAttempts
	}
	return 3
}

func (m *Machine) retryBase() time.Duration {
	if m.RetryBase > 0 {
		return m.RetryBase
	}
	return 2 * time.Second
}

func (m *Machine) stepTimeout() time.Duration {
	if m.StepTimeout > 0 {
		return m.StepTimeout
	}
	return 30 * time.Second
}

func (m *Machine) recorder() monitoring.Recorder {
	if m.Recorder != nil {
		return m.Recorder
	}
	return monitoring.Nop{}
}

// Run drives one execution to a terminal state. Cancellation is honored
// before every transition; a cancelled execution returns the context error
// and its output must not be treated as authoritative.
func (m *Machine) Run(ctx context.Context, in Input) (*Execution, error) {
	ec := &Execution{Input: in, State: StateExtract}

	for {
		if err := ctx.Err(); err != nil {
			ec.LastErr = err
			return ec, err
		}

		switch ec.State {
		case StateExtract:
			ec.last = m.invoke(ctx, "Extract", ec, m.stepExtract)
			m.transition(ctx, ec, StateCheckExtract)
		case StateCheckExtract:
			m.transition(ctx, ec, m.check(StateValidate, ec))
		case StateValidate:
			ec.last = m.invoke(ctx, "Validate", ec, m.stepValidate)
			m.transition(ctx, ec, StateCheckValidate)
		case StateCheckValidate:
			m.transition(ctx, ec, m.check(StateDeidentify, ec))
		case StateDeidentify:
			ec.last = m.invoke(ctx, "Deidentify", ec, m.stepDeidentify)
			m.transition(ctx, ec, StateCheckDeidentify)
		case StateCheckDeidentify:
			m.transition(ctx, ec, m.check(StatePublishSuccess, ec))
		case StatePublishSuccess:
			m.recorder().Count("pipeline_success", 1, nil)
			m.transition(ctx, ec, StateSuccess)
		case StateHandleError:
			m.transition(ctx, ec, StatePublishFailure)
		case StatePublishFailure:
			m.recorder().Count("pipeline_failure", 1, map[string]string{"step": ec.FailedStep})
			m.transition(ctx, ec, StateFailure)
		case StateSuccess:
			return ec, nil
		case StateFailure:
			return ec, nil
		}
	}
}

// check routes a check state: advance on the explicit success discriminator,
// otherwise into error handling.
func (m *Machine) check(next State, ec *Execution) State {
	if ec.last.OK {
		return next
	}
	return StateHandleError
}

func (m *Machine) transition(ctx context.Context, ec *Execution, next State) {
	ec.State = next

	details := map[string]string{
		"state": next.String(),
		"input": ec.Input.StorageLocation,
	}
	status := "ok"
	if ec.LastErr != nil {
		status = "error"
		details["error"] = ec.LastErr.Error()
	}
	m.recorder().Log(monitoring.Record{
		Timestamp: time.Now().UTC(),
		Operation: "workflow.transition",
		Status:    status,
		Details:   details,
	})

	if m.OnTransition != nil {
		m.OnTransition(ctx, ec)
	}
}

// invoke runs one step under the timeout and retry policy and normalizes
// the outcome into the StepResult envelope. Only failures on the transient
// allow-list are retried; attempt count is bounded by MaxAttempts with
// doubling backoff.
func (m *Machine) invoke(ctx context.Context, name string, ec *Execution, fn stepFunc) StepResult {
	ec.Attempts = 0

	backoff := retry.WithMaxRetries(uint64(m.maxAttempts()-1), retry.NewExponential(m.retryBase()))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ec.Attempts++

		stepCtx, cancel := context.WithTimeout(ctx, m.stepTimeout())
		defer cancel()

		err := fn(stepCtx, ec)
		if err != nil && stepCtx.Err() != nil && ctx.Err() == nil {
			// budget exceeded, not caller cancellation
			err = Transient(name+".timeout", errors.Join(err, stepCtx.Err()))
		}
		if err != nil && IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})

	if err != nil {
		ec.LastErr = err
		ec.FailedStep = name
		return StepResult{OK: false, Err: err}
	}
	return StepResult{OK: true}
}
