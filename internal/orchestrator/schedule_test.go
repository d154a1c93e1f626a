package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delacruz/cliflow-go/internal/model"
	"github.com/delacruz/cliflow-go/internal/registry"
)

func TestDueProcesses_RestartsElapsedScheduledRecord(t *testing.T) {
	reg := registry.New()
	reg.Register(registry.ProcessType{
		Name: "scheduled",
		Tasks: []model.TaskDef{
			{Name: "A", Command: "echo one", TimeoutMinutes: 1, MaxRetries: 0},
		},
	})
	o, st := newTestOrchestrator(t, reg)
	ctx := context.Background()

	completedWhen := time.Now().UTC().Add(-time.Hour)
	schedule := "@every 1m"
	record := &model.ProcessRecord{
		ID:               "proc-scheduled",
		Type:             "scheduled",
		InputData:        "{}",
		Schedule:         &schedule,
		CurrentStatus:    model.ProcessCompleted,
		CurrentTaskIndex: 1,
		TotalTasks:       1,
		CompletedWhen:    &completedWhen,
		CreatedAt:        completedWhen,
		UpdatedAt:        completedWhen,
	}
	require.NoError(t, st.CreateProcessRecord(ctx, record))

	o.dueProcesses(ctx)

	record = waitForTerminal(t, st, "proc-scheduled")
	assert.Equal(t, model.ProcessCompleted, record.CurrentStatus)
	assert.Equal(t, 1, record.CurrentTaskIndex)
	assert.True(t, record.CompletedWhen.After(completedWhen))
}

func TestDueProcesses_SkipsRecordWithoutElapsedInterval(t *testing.T) {
	reg := registry.New()
	reg.Register(registry.ProcessType{
		Name: "scheduled",
		Tasks: []model.TaskDef{
			{Name: "A", Command: "echo one", TimeoutMinutes: 1, MaxRetries: 0},
		},
	})
	o, st := newTestOrchestrator(t, reg)
	ctx := context.Background()

	completedWhen := time.Now().UTC()
	schedule := "@every 1h"
	record := &model.ProcessRecord{
		ID:               "proc-not-due",
		Type:             "scheduled",
		InputData:        "{}",
		Schedule:         &schedule,
		CurrentStatus:    model.ProcessCompleted,
		CurrentTaskIndex: 1,
		TotalTasks:       1,
		CompletedWhen:    &completedWhen,
		CreatedAt:        completedWhen,
		UpdatedAt:        completedWhen,
	}
	require.NoError(t, st.CreateProcessRecord(ctx, record))

	o.dueProcesses(ctx)

	time.Sleep(50 * time.Millisecond)
	got, err := st.GetProcessRecord(ctx, "proc-not-due")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentTaskIndex)
	assert.Equal(t, completedWhen.Unix(), got.CompletedWhen.Unix())
}

func TestParseEveryInterval(t *testing.T) {
	schedule := "@every 5m"
	d, ok := parseEveryInterval(&schedule)
	require.True(t, ok)
	assert.Equal(t, 5*time.Minute, d)

	noSchedule := (*string)(nil)
	_, ok = parseEveryInterval(noSchedule)
	assert.False(t, ok)

	cron := "*/5 * * * *"
	_, ok = parseEveryInterval(&cron)
	assert.False(t, ok)
}
