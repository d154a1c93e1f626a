package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/delacruz/cliflow-go/internal/model"
	"github.com/delacruz/cliflow-go/internal/orcherr"
)

// ScheduleWorkItem upserts a due work item. Rescheduling an existing
// (task_name, task_instance) pair resets its picked/heartbeat state so a
// fresh claim round can pick it up.
func (s *SQLStore) ScheduleWorkItem(ctx context.Context, item *model.WorkItem) error {
	if err := s.db.WithContext(ctx).Save(item).Error; err != nil {
		return fmt.Errorf("store: schedule work item: %w", classify(err))
	}
	return nil
}

// GetWorkItem looks up a single work item by its primary key, used by the
// reconciliation sweep to check whether pending work already exists for a
// process before re-enqueuing it.
func (s *SQLStore) GetWorkItem(ctx context.Context, taskName, taskInstance string) (*model.WorkItem, error) {
	var item model.WorkItem
	err := s.db.WithContext(ctx).
		Where("task_name = ? AND task_instance = ?", taskName, taskInstance).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, orcherr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get work item: %w", classify(err))
	}
	return &item, nil
}

// CountDueWorkItems counts unquarantined work items whose execution_time
// has passed, used to report queue depth (spec.md §6's "QueueDepth"
// metric) without claiming anything.
func (s *SQLStore) CountDueWorkItems(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.WorkItem{}).
		Where("execution_time <= ? AND quarantined = ?", now, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("store: count due work items: %w", classify(err))
	}
	return count, nil
}

// ClaimDue implements spec.md §4.4's pickup protocol: select candidates
// whose execution_time is due and that are either unpicked or whose lease
// has expired, then attempt an atomic compare-and-swap claim on each,
// ordered oldest-due-first. Exactly one caller wins each row across the
// cluster; losers are simply absent from the returned slice.
func (s *SQLStore) ClaimDue(ctx context.Context, now time.Time, leaseDuration time.Duration, workerID string, batch int) ([]*model.WorkItem, error) {
	var candidates []model.WorkItem
	leaseCutoff := now.Add(-leaseDuration)

	err := s.db.WithContext(ctx).
		Where("quarantined = ?", false).
		Where("execution_time <= ?", now).
		Where("(picked = ? OR last_heartbeat IS NULL OR last_heartbeat < ?)", false, leaseCutoff).
		Order("execution_time ASC").
		Limit(batch).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("store: query due work items: %w", classify(err))
	}

	claimed := make([]*model.WorkItem, 0, len(candidates))
	for i := range candidates {
		c := candidates[i]
		res := s.db.WithContext(ctx).Model(&model.WorkItem{}).
			Where("task_name = ? AND task_instance = ? AND version = ?", c.TaskName, c.TaskInstance, c.Version).
			Updates(map[string]any{
				"picked":         true,
				"picked_by":      workerID,
				"last_heartbeat": now,
				"version":        c.Version + 1,
			})
		if res.Error != nil {
			return claimed, fmt.Errorf("store: claim work item: %w", classify(res.Error))
		}
		if res.RowsAffected == 0 {
			continue // lost the race to another claimant
		}

		c.Picked = true
		c.PickedBy = workerID
		c.LastHeartbeat = &now
		c.Version++
		item := c
		claimed = append(claimed, &item)
	}

	return claimed, nil
}

// Heartbeat extends a claimed item's lease, failing with
// orcherr.ErrVersionConflict if the version has moved since the caller's
// last read (another node reclaimed it as expired).
func (s *SQLStore) Heartbeat(ctx context.Context, taskName, taskInstance string, version int64, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.WorkItem{}).
		Where("task_name = ? AND task_instance = ? AND version = ?", taskName, taskInstance, version).
		Updates(map[string]any{
			"last_heartbeat": now,
			"version":        version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("store: heartbeat: %w", classify(res.Error))
	}
	if res.RowsAffected == 0 {
		return orcherr.ErrVersionConflict
	}
	return nil
}

// CompleteWorkItem marks a claimed item successfully handled. Per spec.md
// §4.4 ("On successful return: DELETE the row"), this deletes the row
// outright rather than clearing its claim fields — a completed
// process-step or cli-task must not linger as an immediately reclaimable,
// unpicked row, since that would let a second claimant replay an already
// finished step and race a legitimately in-flight claim under the same
// (task_name, task_instance) key. The delete is itself CAS-guarded on
// version so a claim that has since been reclaimed by a peer (lease
// expired) cannot have its row deleted out from under the new owner.
func (s *SQLStore) CompleteWorkItem(ctx context.Context, taskName, taskInstance string, version int64, now time.Time) error {
	res := s.db.WithContext(ctx).
		Where("task_name = ? AND task_instance = ? AND version = ?", taskName, taskInstance, version).
		Delete(&model.WorkItem{})
	if res.Error != nil {
		return fmt.Errorf("store: complete work item: %w", classify(res.Error))
	}
	if res.RowsAffected == 0 {
		return orcherr.ErrVersionConflict
	}
	return nil
}

// FailWorkItem records a failed attempt, clears the claim, and optionally
// quarantines the item so it is never claimed again (used for
// deserialization failures, spec.md §7). It returns the post-update row so
// callers can inspect the new ConsecutiveFailures count.
func (s *SQLStore) FailWorkItem(ctx context.Context, taskName, taskInstance string, version int64, now time.Time, quarantine bool) (*model.WorkItem, error) {
	var current model.WorkItem
	if err := s.db.WithContext(ctx).
		Where("task_name = ? AND task_instance = ? AND version = ?", taskName, taskInstance, version).
		First(&current).Error; err != nil {
		if gerr := classify(err); gerr == orcherr.ErrNotFound {
			return nil, orcherr.ErrVersionConflict
		}
		return nil, fmt.Errorf("store: fail work item: %w", classify(err))
	}

	updates := map[string]any{
		"picked":               false,
		"picked_by":            "",
		"last_failure":         now,
		"consecutive_failures": current.ConsecutiveFailures + 1,
		"quarantined":          quarantine,
		"version":              version + 1,
	}

	res := s.db.WithContext(ctx).Model(&model.WorkItem{}).
		Where("task_name = ? AND task_instance = ? AND version = ?", taskName, taskInstance, version).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("store: fail work item: %w", classify(res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, orcherr.ErrVersionConflict
	}

	current.Picked = false
	current.PickedBy = ""
	current.LastFailure = &now
	current.ConsecutiveFailures++
	current.Quarantined = quarantine
	current.Version++
	return &current, nil
}

// RescheduleWorkItem pushes a failed item's execution_time forward to
// nextExecution (the retry-backoff target), without touching its claim
// fields or failure counters (FailWorkItem already cleared the claim and
// updated the counters).
func (s *SQLStore) RescheduleWorkItem(ctx context.Context, taskName, taskInstance string, version int64, nextExecution time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.WorkItem{}).
		Where("task_name = ? AND task_instance = ? AND version = ?", taskName, taskInstance, version).
		Updates(map[string]any{
			"execution_time": nextExecution,
			"version":        version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("store: reschedule work item: %w", classify(res.Error))
	}
	if res.RowsAffected == 0 {
		return orcherr.ErrVersionConflict
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
