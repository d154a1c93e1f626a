package model

import (
	"strconv"
	"time"
)

// ProcessRecord is the persistent, user-facing template instance
// (spec.md §3). It is long-lived: one row per id, mutated by the
// orchestrator on start/finish and deleted only when not IN_PROGRESS.
type ProcessRecord struct {
	ID               string        `json:"id" gorm:"primaryKey"`
	Type             string        `json:"type"`
	InputData        string        `json:"input_data"`
	Schedule         *string       `json:"schedule,omitempty"`
	CurrentStatus    ProcessStatus `json:"current_status"`
	CurrentTaskIndex int           `json:"current_task_index"`
	TotalTasks       int           `json:"total_tasks"`
	StartedWhen      *time.Time    `json:"started_when,omitempty"`
	CompletedWhen    *time.Time    `json:"completed_when,omitempty"`
	FailedWhen       *time.Time    `json:"failed_when,omitempty"`
	StoppedWhen      *time.Time    `json:"stopped_when,omitempty"`
	LastErrorMessage string        `json:"last_error_message,omitempty"`
	TriggeredBy      string        `json:"triggered_by,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// TableName pins the gorm table name regardless of the struct name.
func (ProcessRecord) TableName() string { return "process_record" }

// ProcessContext is the per-run accumulator of task outputs available to
// later tasks' template expansion (spec.md §3's process_context map).
type ProcessContext map[string]string

// Set records a task's exit code and output under the
// `<task_name>_exit_code` / `<task_name>_output` keys, plus
// last_completed_task.
func (c ProcessContext) Set(taskName string, exitCode int, output string) {
	c[taskName+"_exit_code"] = strconv.Itoa(exitCode)
	c[taskName+"_output"] = output
	c["last_completed_task"] = taskName
}

// ProcessData is the transient per-run context described in spec.md §3: it
// lives in engine memory and is serialized wholesale into queue payloads so
// a peer node can reconstruct it after a crash (spec.md §9).
type ProcessData struct {
	ProcessID        string         `json:"process_id"`
	ProcessRecordID  string         `json:"process_record_id,omitempty"`
	TypeName         string         `json:"type_name"`
	InputData        map[string]any `json:"input_data"`
	TotalTasks       int            `json:"total_tasks"`
	CurrentTaskIndex int            `json:"current_task_index"`
	Status           ProcessStatus  `json:"status"`
	ProcessContext   ProcessContext `json:"process_context"`
	Tasks            []*TaskData    `json:"tasks"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// CurrentTask returns the TaskData for the current cursor position, or nil
// if the process has already completed all tasks.
func (p *ProcessData) CurrentTask() *TaskData {
	if p.CurrentTaskIndex < 0 || p.CurrentTaskIndex >= len(p.Tasks) {
		return nil
	}
	return p.Tasks[p.CurrentTaskIndex]
}

// IsComplete reports whether every task has been consumed (spec.md
// invariant: current_task_index == total_tasks iff status == COMPLETED).
func (p *ProcessData) IsComplete() bool {
	return p.CurrentTaskIndex >= p.TotalTasks
}
