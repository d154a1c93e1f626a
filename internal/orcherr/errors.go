// Package orcherr defines the sentinel error kinds shared across the
// orchestrator's layers, so callers can classify a failure with errors.Is
// instead of inspecting strings.
package orcherr

import "errors"

// Kind roughly buckets a sentinel error for metrics/logging purposes.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindValidation       Kind = "validation"
	KindTransientStore   Kind = "transient_store"
	KindFatalStore       Kind = "fatal_store"
	KindExecution        Kind = "execution"
	KindExecutionTimeout Kind = "execution_timeout"
	KindExecutionNonZero Kind = "execution_non_zero_exit"
	KindSerialization    Kind = "serialization"
)

var (
	// ErrNotFound is returned when a process record, process type, or task
	// cannot be located.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for bad input or an illegal state
	// transition (e.g. starting an already-running process record).
	ErrValidation = errors.New("validation error")

	// ErrTransientStore signals a store failure a caller may retry (a
	// connection blip, a deadlock loser).
	ErrTransientStore = errors.New("transient store error")

	// ErrFatalStore signals a store failure that will not resolve itself
	// (schema drift, permission denied) and should halt the caller.
	ErrFatalStore = errors.New("fatal store error")

	// ErrExecutionTimeout is returned by the command executor when a child
	// process is killed for exceeding its timeout.
	ErrExecutionTimeout = errors.New("execution timed out")

	// ErrExecutionNonZeroExit is returned when a child process exits with a
	// non-zero status.
	ErrExecutionNonZeroExit = errors.New("execution exited non-zero")

	// ErrExecutionInvocation is returned when the child process could not
	// even be started (binary not found, permission denied).
	ErrExecutionInvocation = errors.New("execution could not be invoked")

	// ErrSerialization is returned when a work-item payload cannot be
	// decoded; the item is quarantined rather than retried forever.
	ErrSerialization = errors.New("serialization error")

	// ErrAlreadyRunning signals StartProcess was called on a record that is
	// already IN_PROGRESS.
	ErrAlreadyRunning = errors.New("process already running")

	// ErrVersionConflict signals a lost optimistic-concurrency race on a
	// work item or record; the caller should treat this as "someone else
	// got there first" and move on.
	ErrVersionConflict = errors.New("version conflict")
)
