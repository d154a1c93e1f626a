package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/delacruz/cliflow-go/internal/model"
	"github.com/delacruz/cliflow-go/internal/orcherr"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(sqlite.Open(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStore_ProcessRecordCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := &model.ProcessRecord{ID: "p-1", Type: "deploy", CurrentStatus: model.ProcessPending}
	require.NoError(t, s.CreateProcessRecord(ctx, rec))

	got, err := s.GetProcessRecord(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "deploy", got.Type)
	assert.Equal(t, model.ProcessPending, got.CurrentStatus)

	got.CurrentStatus = model.ProcessInProgress
	require.NoError(t, s.UpdateProcessRecord(ctx, got))

	reloaded, err := s.GetProcessRecord(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, model.ProcessInProgress, reloaded.CurrentStatus)
}

func TestSQLStore_GetProcessRecord_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetProcessRecord(context.Background(), "missing")
	assert.ErrorIs(t, err, orcherr.ErrNotFound)
}

func TestSQLStore_DeleteProcessRecord_BlocksWhenInProgress(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := &model.ProcessRecord{ID: "p-2", CurrentStatus: model.ProcessInProgress}
	require.NoError(t, s.CreateProcessRecord(ctx, rec))

	err := s.DeleteProcessRecord(ctx, "p-2")
	assert.ErrorIs(t, err, orcherr.ErrValidation)

	rec.CurrentStatus = model.ProcessCompleted
	require.NoError(t, s.UpdateProcessRecord(ctx, rec))
	require.NoError(t, s.DeleteProcessRecord(ctx, "p-2"))
}

func TestSQLStore_FindProcessRecordsByStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateProcessRecord(ctx, &model.ProcessRecord{ID: "a", CurrentStatus: model.ProcessInProgress}))
	require.NoError(t, s.CreateProcessRecord(ctx, &model.ProcessRecord{ID: "b", CurrentStatus: model.ProcessInProgress}))
	require.NoError(t, s.CreateProcessRecord(ctx, &model.ProcessRecord{ID: "c", CurrentStatus: model.ProcessCompleted}))

	found, err := s.FindProcessRecordsByStatus(ctx, model.ProcessInProgress)
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestSQLStore_TaskUpsertAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t1 := &model.TaskData{TaskID: "p-1-task-0", ProcessRecordID: "p-1", TaskIndex: 0, Name: "build", Status: model.TaskPending}
	require.NoError(t, s.UpsertTask(ctx, t1))

	got, err := s.GetTask(ctx, "p-1-task-0")
	require.NoError(t, err)
	assert.Equal(t, "build", got.Name)

	got.Status = model.TaskCompleted
	require.NoError(t, s.UpsertTask(ctx, got))

	reloaded, err := s.GetTask(ctx, "p-1-task-0")
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, reloaded.Status)

	t2 := &model.TaskData{TaskID: "p-1-task-1", ProcessRecordID: "p-1", TaskIndex: 1, Name: "push"}
	require.NoError(t, s.UpsertTask(ctx, t2))

	list, err := s.ListTasksForProcess(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "build", list[0].Name)
	assert.Equal(t, "push", list[1].Name)
}

func TestSQLStore_ClaimDue_SingleClaimant(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	item := &model.WorkItem{TaskName: "cli-task", TaskInstance: "proc-1", ExecutionTime: now.Add(-time.Second)}
	require.NoError(t, s.ScheduleWorkItem(ctx, item))

	claimed, err := s.ClaimDue(ctx, now, 5*time.Minute, "worker-a", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.True(t, claimed[0].Picked)
	assert.Equal(t, "worker-a", claimed[0].PickedBy)
	assert.Equal(t, int64(1), claimed[0].Version)

	// a second claim round finds nothing: lease not yet expired
	claimed2, err := s.ClaimDue(ctx, now, 5*time.Minute, "worker-b", 10)
	require.NoError(t, err)
	assert.Empty(t, claimed2)
}

func TestSQLStore_GetWorkItem(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	item := &model.WorkItem{TaskName: "process-step", TaskInstance: "proc-1", ExecutionTime: now}
	require.NoError(t, s.ScheduleWorkItem(ctx, item))

	got, err := s.GetWorkItem(ctx, "process-step", "proc-1")
	require.NoError(t, err)
	assert.Equal(t, "proc-1", got.TaskInstance)

	_, err = s.GetWorkItem(ctx, "process-step", "nonexistent")
	assert.ErrorIs(t, err, orcherr.ErrNotFound)
}

func TestSQLStore_CountDueWorkItems(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.ScheduleWorkItem(ctx, &model.WorkItem{TaskName: "cli-task", TaskInstance: "due-1", ExecutionTime: now.Add(-time.Second)}))
	require.NoError(t, s.ScheduleWorkItem(ctx, &model.WorkItem{TaskName: "cli-task", TaskInstance: "not-due", ExecutionTime: now.Add(time.Hour)}))
	require.NoError(t, s.ScheduleWorkItem(ctx, &model.WorkItem{TaskName: "cli-task", TaskInstance: "quarantined", ExecutionTime: now.Add(-time.Second), Quarantined: true}))

	count, err := s.CountDueWorkItems(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLStore_ClaimDue_NotYetDue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	item := &model.WorkItem{TaskName: "cli-task", TaskInstance: "proc-1", ExecutionTime: now.Add(time.Hour)}
	require.NoError(t, s.ScheduleWorkItem(ctx, item))

	claimed, err := s.ClaimDue(ctx, now, 5*time.Minute, "worker-a", 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestSQLStore_ClaimDue_ReclaimsExpiredLease(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	staleHeartbeat := now.Add(-10 * time.Minute)
	item := &model.WorkItem{
		TaskName: "cli-task", TaskInstance: "proc-1",
		ExecutionTime: now.Add(-time.Hour),
		Picked:        true,
		PickedBy:      "dead-worker",
		LastHeartbeat: &staleHeartbeat,
	}
	require.NoError(t, s.ScheduleWorkItem(ctx, item))

	claimed, err := s.ClaimDue(ctx, now, 5*time.Minute, "worker-b", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "worker-b", claimed[0].PickedBy)
}

func TestSQLStore_ClaimDue_SkipsQuarantined(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	item := &model.WorkItem{TaskName: "cli-task", TaskInstance: "proc-1", ExecutionTime: now.Add(-time.Second), Quarantined: true}
	require.NoError(t, s.ScheduleWorkItem(ctx, item))

	claimed, err := s.ClaimDue(ctx, now, 5*time.Minute, "worker-a", 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestSQLStore_HeartbeatAndComplete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	item := &model.WorkItem{TaskName: "cli-task", TaskInstance: "proc-1", ExecutionTime: now.Add(-time.Second)}
	require.NoError(t, s.ScheduleWorkItem(ctx, item))

	claimed, err := s.ClaimDue(ctx, now, 5*time.Minute, "worker-a", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	version := claimed[0].Version

	later := now.Add(time.Minute)
	require.NoError(t, s.Heartbeat(ctx, "cli-task", "proc-1", version, later))
	version++

	require.NoError(t, s.CompleteWorkItem(ctx, "cli-task", "proc-1", version, later))

	// Stale version now rejected.
	err = s.Heartbeat(ctx, "cli-task", "proc-1", version, later)
	assert.ErrorIs(t, err, orcherr.ErrVersionConflict)

	// Completion deletes the row outright (spec.md §4.4): it must not
	// linger as an immediately reclaimable, unpicked row.
	_, err = s.GetWorkItem(ctx, "cli-task", "proc-1")
	assert.ErrorIs(t, err, orcherr.ErrNotFound)

	claimed, err = s.ClaimDue(ctx, later.Add(time.Minute), 5*time.Minute, "worker-a", 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestSQLStore_FailWorkItem_Quarantine(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	item := &model.WorkItem{TaskName: "cli-task", TaskInstance: "proc-1", ExecutionTime: now.Add(-time.Second)}
	require.NoError(t, s.ScheduleWorkItem(ctx, item))

	claimed, err := s.ClaimDue(ctx, now, 5*time.Minute, "worker-a", 10)
	require.NoError(t, err)
	version := claimed[0].Version

	updated, err := s.FailWorkItem(ctx, "cli-task", "proc-1", version, now, true)
	require.NoError(t, err)
	assert.True(t, updated.Quarantined)
	assert.Equal(t, 1, updated.ConsecutiveFailures)
	assert.False(t, updated.Picked)
}

func TestSQLStore_RescheduleWorkItem(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	item := &model.WorkItem{TaskName: "cli-task", TaskInstance: "proc-1", ExecutionTime: now.Add(-time.Second)}
	require.NoError(t, s.ScheduleWorkItem(ctx, item))

	claimed, err := s.ClaimDue(ctx, now, 5*time.Minute, "worker-a", 10)
	require.NoError(t, err)
	version := claimed[0].Version

	updated, err := s.FailWorkItem(ctx, "cli-task", "proc-1", version, now, false)
	require.NoError(t, err)

	next := now.Add(30 * time.Second)
	require.NoError(t, s.RescheduleWorkItem(ctx, "cli-task", "proc-1", updated.Version, next))

	// Not due yet at `now`.
	claimed2, err := s.ClaimDue(ctx, now, 5*time.Minute, "worker-b", 10)
	require.NoError(t, err)
	assert.Empty(t, claimed2)

	// Due at `next`.
	claimed3, err := s.ClaimDue(ctx, next, 5*time.Minute, "worker-b", 10)
	require.NoError(t, err)
	require.Len(t, claimed3, 1)
}

func TestSQLStore_Ping(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
