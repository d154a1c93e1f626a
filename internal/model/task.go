package model

import (
	"strconv"
	"time"
)

// TaskData is one row per task-execution attempt (spec.md §3). TaskID is of
// the form `<process_id>-task-<index>` and is the upsert key.
type TaskData struct {
	TaskID            string     `json:"task_id" gorm:"primaryKey;column:id"`
	ProcessRecordID   string     `json:"process_record_id" gorm:"index"`
	TaskIndex         int        `json:"task_index"`
	Name              string     `json:"name"`
	Command           string     `json:"command"`
	WorkingDirectory  string     `json:"working_directory"`
	TimeoutMinutes    int        `json:"timeout_minutes"`
	MaxRetries        int        `json:"max_retries"`
	RetryCount        int        `json:"retry_count"`
	Status            TaskStatus `json:"status"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ExitCode          *int       `json:"exit_code,omitempty"`
	Output            string     `json:"output,omitempty"`
	OutputTruncated   bool       `json:"output_truncated,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
}

// TableName pins the gorm table name to the logical schema in spec.md §6.
func (TaskData) TableName() string { return "tasks" }

// TaskDef is one entry in a ProcessType's ordered task list (spec.md §4.3):
// a template for a TaskData row, materialized fresh on every StartProcess.
type TaskDef struct {
	Name             string
	Command          string
	WorkingDirectory string
	TimeoutMinutes   int
	MaxRetries       int
}

// Materialize builds the TaskData row for task index idx of process run
// processID, in PENDING state.
func (d TaskDef) Materialize(processID string, idx int) *TaskData {
	return &TaskData{
		TaskID:           processID + "-task-" + strconv.Itoa(idx),
		TaskIndex:        idx,
		Name:             d.Name,
		Command:          d.Command,
		WorkingDirectory: d.WorkingDirectory,
		TimeoutMinutes:   d.TimeoutMinutes,
		MaxRetries:       d.MaxRetries,
		Status:           TaskPending,
	}
}
