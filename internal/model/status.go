package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// ProcessStatus is the lifecycle status of a ProcessRecord.
type ProcessStatus int

const (
	ProcessPending ProcessStatus = iota
	ProcessInProgress
	ProcessCompleted
	ProcessFailed
	ProcessStopped
)

func (s ProcessStatus) String() string {
	switch s {
	case ProcessPending:
		return "PENDING"
	case ProcessInProgress:
		return "IN_PROGRESS"
	case ProcessCompleted:
		return "COMPLETED"
	case ProcessFailed:
		return "FAILED"
	case ProcessStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// ParseProcessStatus parses a status string, defaulting to PENDING for
// anything unrecognized.
func ParseProcessStatus(s string) ProcessStatus {
	switch s {
	case "PENDING":
		return ProcessPending
	case "IN_PROGRESS":
		return ProcessInProgress
	case "COMPLETED":
		return ProcessCompleted
	case "FAILED":
		return ProcessFailed
	case "STOPPED":
		return ProcessStopped
	default:
		return ProcessPending
	}
}

// IsTerminal reports whether the status is one of COMPLETED, FAILED, STOPPED.
func (s ProcessStatus) IsTerminal() bool {
	return s == ProcessCompleted || s == ProcessFailed || s == ProcessStopped
}

// Value implements driver.Valuer so gorm persists the status as its name
// rather than its underlying int, keeping the column human-readable.
func (s ProcessStatus) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements sql.Scanner for the reverse direction.
func (s *ProcessStatus) Scan(value any) error {
	switch v := value.(type) {
	case string:
		*s = ParseProcessStatus(v)
	case []byte:
		*s = ParseProcessStatus(string(v))
	case nil:
		*s = ProcessPending
	default:
		return fmt.Errorf("model: cannot scan %T into ProcessStatus", value)
	}
	return nil
}

// MarshalJSON serializes the status by name so work-item payloads and API
// responses read as "IN_PROGRESS" rather than a bare integer.
func (s ProcessStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts the quoted status name.
func (s *ProcessStatus) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}
	*s = ParseProcessStatus(str)
	return nil
}

// ProcessTransitions encodes the state diagram from spec.md §4.6: a
// terminal status may always restart back to IN_PROGRESS, and IN_PROGRESS
// may move to any of the three terminal states.
var ProcessTransitions = map[ProcessStatus][]ProcessStatus{
	ProcessPending:    {ProcessInProgress},
	ProcessInProgress: {ProcessCompleted, ProcessFailed, ProcessStopped},
	ProcessCompleted:  {ProcessInProgress}, // restart
	ProcessFailed:     {ProcessInProgress}, // restart
	ProcessStopped:    {ProcessInProgress}, // restart
}

// CanTransitionTo reports whether s -> target is a legal transition.
func (s ProcessStatus) CanTransitionTo(target ProcessStatus) bool {
	for _, t := range ProcessTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// TaskStatus is the status of a single TaskData row.
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskRunning
	TaskCompleted
	TaskFailed
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "PENDING"
	case TaskRunning:
		return "RUNNING"
	case TaskCompleted:
		return "COMPLETED"
	case TaskFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ParseTaskStatus parses a status string, defaulting to PENDING.
func ParseTaskStatus(s string) TaskStatus {
	switch s {
	case "PENDING":
		return TaskPending
	case "RUNNING":
		return TaskRunning
	case "COMPLETED":
		return TaskCompleted
	case "FAILED":
		return TaskFailed
	default:
		return TaskPending
	}
}

// IsTerminal reports whether the task status is COMPLETED or FAILED.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Value implements driver.Valuer so gorm persists the status as its name.
func (s TaskStatus) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements sql.Scanner for the reverse direction.
func (s *TaskStatus) Scan(value any) error {
	switch v := value.(type) {
	case string:
		*s = ParseTaskStatus(v)
	case []byte:
		*s = ParseTaskStatus(string(v))
	case nil:
		*s = TaskPending
	default:
		return fmt.Errorf("model: cannot scan %T into TaskStatus", value)
	}
	return nil
}

// MarshalJSON serializes the status by name.
func (s TaskStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts the quoted status name.
func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}
	*s = ParseTaskStatus(str)
	return nil
}

// ProcessStateMachine enforces legal ProcessRecord transitions and stamps
// the corresponding terminal timestamp.
type ProcessStateMachine struct {
	record *ProcessRecord
}

// NewProcessStateMachine wraps a record for transition-checked mutation.
func NewProcessStateMachine(r *ProcessRecord) *ProcessStateMachine {
	return &ProcessStateMachine{record: r}
}

// Transition moves the record to target at the given timestamp, or returns
// an error if the transition is not legal. Terminal fields
// (CompletedWhen/FailedWhen/StoppedWhen) are mutually exclusive: a restart
// clears all three.
func (sm *ProcessStateMachine) Transition(target ProcessStatus, at time.Time) error {
	if !sm.record.CurrentStatus.CanTransitionTo(target) {
		return errInvalidTransition(sm.record.CurrentStatus, target)
	}

	sm.record.CurrentStatus = target
	sm.record.UpdatedAt = at

	switch target {
	case ProcessInProgress:
		if sm.record.StartedWhen == nil {
			sm.record.StartedWhen = &at
		}
		sm.record.CompletedWhen = nil
		sm.record.FailedWhen = nil
		sm.record.StoppedWhen = nil
		sm.record.LastErrorMessage = ""
	case ProcessCompleted:
		sm.record.CompletedWhen = &at
	case ProcessFailed:
		sm.record.FailedWhen = &at
	case ProcessStopped:
		sm.record.StoppedWhen = &at
	}

	return nil
}

// TaskStateMachine enforces legal TaskData transitions.
type TaskStateMachine struct {
	task *TaskData
}

// NewTaskStateMachine wraps a task row for transition-checked mutation.
func NewTaskStateMachine(t *TaskData) *TaskStateMachine {
	return &TaskStateMachine{task: t}
}

// Start marks the task RUNNING, recording the start timestamp.
func (sm *TaskStateMachine) Start(at time.Time) {
	sm.task.Status = TaskRunning
	sm.task.StartedAt = &at
}

// Complete marks the task COMPLETED with its exit code and captured output.
func (sm *TaskStateMachine) Complete(at time.Time, exitCode int, output string) {
	sm.task.Status = TaskCompleted
	sm.task.CompletedAt = &at
	sm.task.ExitCode = &exitCode
	sm.task.Output = output
	sm.task.ErrorMessage = ""
}

// Fail marks the task FAILED with an error message and, if the process
// exited normally, its exit code.
func (sm *TaskStateMachine) Fail(at time.Time, exitCode *int, output, errMsg string) {
	sm.task.Status = TaskFailed
	sm.task.CompletedAt = &at
	sm.task.ExitCode = exitCode
	sm.task.Output = output
	sm.task.ErrorMessage = errMsg
}

// ResetForRetry resets a failed task back to PENDING for another attempt,
// incrementing RetryCount. The caller is responsible for checking
// CanRetry() first.
func (sm *TaskStateMachine) ResetForRetry() {
	sm.task.RetryCount++
	sm.task.Status = TaskPending
	sm.task.StartedAt = nil
	sm.task.CompletedAt = nil
}

// CanRetry reports whether the task has retry budget left (spec.md P2:
// retry_count <= max_retries + 1 overall, i.e. at most MaxRetries retries
// beyond the first attempt).
func (t *TaskData) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

func errInvalidTransition(from, to ProcessStatus) error {
	return &invalidTransitionError{from: from, to: to}
}

type invalidTransitionError struct {
	from, to ProcessStatus
}

func (e *invalidTransitionError) Error() string {
	return "invalid process transition: " + e.from.String() + " -> " + e.to.String()
}
