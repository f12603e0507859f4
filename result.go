package cpio

import "fmt"

// Code enumerates the error codes the core distinguishes, per the error
// handling design. A Code is meaningful only inside a retriable or failure
// Result; a successful Result carries no code.
type Code string

const (
	// CodeNone is the zero value. A successful Result carries it, and so
	// does a failure/retriable Result that has no core code, in which case
	// its wrapped error is the only description of what went wrong.
	CodeNone Code = ""

	// CodeCurrentInstanceTerminating is returned when the autoscaler has
	// already decided to drain this instance.
	CodeCurrentInstanceTerminating Code = "current-instance-terminating"

	// CodeOrphanedJobFound is returned when a queue message has no
	// corresponding database row.
	CodeOrphanedJobFound Code = "orphaned-job-found"

	// CodeJobAlreadyCompleted is returned when a queue message's row is
	// already in a terminal state.
	CodeJobAlreadyCompleted Code = "job-already-completed"

	// CodeJobBeingProcessed is returned when another worker already holds
	// this job within its processing timeout window.
	CodeJobBeingProcessed Code = "job-being-processed"

	// CodeRetriesExhausted is returned after a job's row is marked failed
	// because it hit the retry ceiling.
	CodeRetriesExhausted Code = "retries-exhausted"

	// CodeDispatchRetriesExhausted is returned by a retry.Dispatcher when
	// its Policy reports no further attempt is owed after a retriable
	// result. Distinct from CodeRetriesExhausted, which marks a job's own
	// retry-count ceiling rather than a dispatcher's backoff ceiling.
	CodeDispatchRetriesExhausted Code = "dispatch-retries-exhausted"

	// CodeMissingJobID is an input-validation failure: no job id supplied.
	CodeMissingJobID Code = "missing-job-id"

	// CodeInvalidJobStatus is an input-validation failure: the job's
	// current status does not allow the requested transition.
	CodeInvalidJobStatus Code = "invalid-job-status"

	// CodeInvalidDurationBeforeRelease is an input-validation failure: the
	// requested release delay is outside [0, 600] seconds.
	CodeInvalidDurationBeforeRelease Code = "invalid-duration-before-release"

	// CodeMissingReceiptInfo is returned when the claimed-jobs map has no
	// entry for the requested job id.
	CodeMissingReceiptInfo Code = "missing-receipt-info"

	// CodeUpdationConflict is returned when a CAS update loses a race with
	// a concurrent modification of the same row.
	CodeUpdationConflict Code = "updation-conflict"

	// CodeStreamSessionCancelled is returned when a blob stream operation
	// observes a cancelled context between chunks.
	CodeStreamSessionCancelled Code = "stream-session-cancelled"

	// CodeStreamSessionExpired is returned when a blob stream's underlying
	// session/lease is no longer valid.
	CodeStreamSessionExpired Code = "stream-session-expired"

	// CodeBadSessionToken is returned when a token endpoint's response is
	// malformed or, for the TEE endpoint specifically, empty.
	CodeBadSessionToken Code = "bad-session-token"

	// CodeCancelled is returned when a Context is resolved because its
	// governing context.Context was cancelled.
	CodeCancelled Code = "cancelled"
)

// Outcome classifies a Result as success, retriable, or a fatal failure.
type Outcome uint8

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetriable
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetriable:
		return "retriable"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is a tagged union: success, a retriable failure carrying a
// code, or a fatal failure carrying a code. It is deliberately a value
// type distinct from error; it carries the state-machine-level outcome a
// retry dispatcher and a job lifecycle helper must branch on. A
// transport/IO failure inside an operation is carried as the Result's
// wrapped error, usually with CodeNone; Err adapts it back to an error.
type Result struct {
	outcome Outcome
	code    Code
	err     error
}

// Success returns a Result representing a successful operation.
func Success() Result {
	return Result{outcome: OutcomeSuccess}
}

// Retriable returns a Result representing a retriable failure. err, if
// non-nil, is preserved for logging but does not change retry behavior.
func Retriable(code Code, err error) Result {
	return Result{outcome: OutcomeRetriable, code: code, err: err}
}

// Failure returns a Result representing a fatal, non-retriable failure.
func Failure(code Code, err error) Result {
	return Result{outcome: OutcomeFailure, code: code, err: err}
}

// IsSuccess reports whether the Result represents success.
func (r Result) IsSuccess() bool {
	return r.outcome == OutcomeSuccess
}

// IsRetriable reports whether the Result represents a retriable failure.
func (r Result) IsRetriable() bool {
	return r.outcome == OutcomeRetriable
}

// IsFailure reports whether the Result represents any failure, retriable
// or fatal.
func (r Result) IsFailure() bool {
	return r.outcome != OutcomeSuccess
}

// Code returns the Result's error code. It is CodeNone for a successful Result.
func (r Result) Code() Code {
	return r.code
}

// Outcome returns the Result's outcome tag.
func (r Result) Outcome() Outcome {
	return r.outcome
}

// Unwrap returns the underlying error, if any, for use with errors.Is/As.
func (r Result) Unwrap() error {
	return r.err
}

// Err adapts the Result into a plain error for callers that only want a
// Go-idiomatic error return. A successful Result adapts to nil. A failure
// with no code renders as its underlying error alone.
func (r Result) Err() error {
	if r.outcome == OutcomeSuccess {
		return nil
	}
	if r.code == CodeNone {
		if r.err != nil {
			return r.err
		}
		return fmt.Errorf("%s", r.outcome)
	}
	if r.err != nil {
		return fmt.Errorf("%s: %w", r.code, r.err)
	}
	return fmt.Errorf("%s", r.code)
}

func (r Result) String() string {
	if r.outcome == OutcomeSuccess {
		return "success"
	}
	return fmt.Sprintf("%s(%s)", r.outcome, r.code)
}
