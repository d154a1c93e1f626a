package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProcessContext_Set(t *testing.T) {
	ctx := ProcessContext{}
	ctx.Set("build", 0, "compiled ok")

	assert.Equal(t, "0", ctx["build_exit_code"])
	assert.Equal(t, "compiled ok", ctx["build_output"])
	assert.Equal(t, "build", ctx["last_completed_task"])

	ctx.Set("test", 1, "failures")
	assert.Equal(t, "1", ctx["test_exit_code"])
	assert.Equal(t, "test", ctx["last_completed_task"])
	// previous task's keys remain
	assert.Equal(t, "compiled ok", ctx["build_output"])
}

func TestProcessData_CurrentTask(t *testing.T) {
	tasks := []*TaskData{
		{Name: "a"},
		{Name: "b"},
	}
	pd := &ProcessData{Tasks: tasks, CurrentTaskIndex: 1, TotalTasks: 2}

	got := pd.CurrentTask()
	assert.Equal(t, "b", got.Name)

	pd.CurrentTaskIndex = 2
	assert.Nil(t, pd.CurrentTask())

	pd.CurrentTaskIndex = -1
	assert.Nil(t, pd.CurrentTask())
}

func TestProcessData_IsComplete(t *testing.T) {
	pd := &ProcessData{TotalTasks: 3, CurrentTaskIndex: 2}
	assert.False(t, pd.IsComplete())

	pd.CurrentTaskIndex = 3
	assert.True(t, pd.IsComplete())

	pd.CurrentTaskIndex = 4
	assert.True(t, pd.IsComplete())
}

func TestProcessRecord_TableName(t *testing.T) {
	assert.Equal(t, "process_record", ProcessRecord{}.TableName())
}

func TestProcessData_JSONRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	pd := &ProcessData{
		ProcessID:        "p-1",
		TypeName:         "deploy",
		InputData:        map[string]any{"env": "staging"},
		TotalTasks:       1,
		CurrentTaskIndex: 0,
		Status:           ProcessInProgress,
		ProcessContext:   ProcessContext{"k": "v"},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	data, err := json.Marshal(pd)
	assert.NoError(t, err)

	var got ProcessData
	assert.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, pd.Status, got.Status)
	assert.Equal(t, pd.ProcessID, got.ProcessID)
}
