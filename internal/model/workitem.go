package model

import "time"

// Well-known work-item task names (spec.md §3/§4.4).
const (
	TaskNameProcessStep = "process-step"
	TaskNameCLITask     = "cli-task"
)

// WorkItem is a durable row in the scheduled_tasks table (spec.md §3/§6):
// the unit of cluster-safe deferred work, keyed by (TaskName, TaskInstance).
type WorkItem struct {
	TaskName            string     `json:"task_name" gorm:"primaryKey"`
	TaskInstance        string     `json:"task_instance" gorm:"primaryKey"`
	TaskData            string     `json:"task_data"` // opaque JSON envelope, see queue.Payload
	ExecutionTime       time.Time  `json:"execution_time" gorm:"index"`
	Picked              bool       `json:"picked"`
	PickedBy            string     `json:"picked_by,omitempty"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	LastFailure         *time.Time `json:"last_failure,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastHeartbeat       *time.Time `json:"last_heartbeat,omitempty" gorm:"index"`
	Quarantined         bool       `json:"quarantined"`
	Version             int64      `json:"version"`
}

// TableName pins the gorm table name to the logical schema in spec.md §6.
func (WorkItem) TableName() string { return "scheduled_tasks" }

// LeaseExpired reports whether a picked item's heartbeat is older than the
// lease duration L, making it eligible for reclaim (spec.md §4.4/P4).
func (w WorkItem) LeaseExpired(leaseDuration time.Duration, now time.Time) bool {
	if !w.Picked {
		return false
	}
	if w.LastHeartbeat == nil {
		return true
	}
	return now.Sub(*w.LastHeartbeat) >= leaseDuration
}
