package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_Constants(t *testing.T) {
	assert.Equal(t, EventType("process.started"), EventProcessStarted)
	assert.Equal(t, EventType("process.completed"), EventProcessCompleted)
	assert.Equal(t, EventType("process.failed"), EventProcessFailed)
	assert.Equal(t, EventType("process.stopped"), EventProcessStopped)
	assert.Equal(t, EventType("task.started"), EventTaskStarted)
	assert.Equal(t, EventType("task.completed"), EventTaskCompleted)
	assert.Equal(t, EventType("task.failed"), EventTaskFailed)
	assert.Equal(t, EventType("task.retrying"), EventTaskRetrying)
	assert.Equal(t, EventType("queue.depth"), EventQueueDepth)
}

func TestNewEvent(t *testing.T) {
	data := map[string]interface{}{
		"record_id": "proc-123",
		"type":      "onboard-user",
	}

	event := NewEvent(EventProcessStarted, data)

	assert.Equal(t, EventProcessStarted, event.Type)
	assert.Equal(t, data, event.Data)
	assert.False(t, event.Timestamp.IsZero())
	assert.WithinDuration(t, time.Now(), event.Timestamp, time.Second)
}

func TestEvent_ToJSON(t *testing.T) {
	event := &Event{
		Type:      EventTaskCompleted,
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Data: map[string]interface{}{
			"task_id": "proc-456-task-0",
			"result":  "success",
		},
	}

	data, err := event.ToJSON()
	require.NoError(t, err)

	var parsed map[string]interface{}
	err = json.Unmarshal(data, &parsed)
	require.NoError(t, err)

	assert.Equal(t, "task.completed", parsed["type"])
	assert.NotEmpty(t, parsed["timestamp"])
	assert.NotNil(t, parsed["data"])
}

func TestFromJSON(t *testing.T) {
	jsonData := `{
		"type": "task.failed",
		"timestamp": "2024-01-15T10:30:00Z",
		"data": {"task_id": "proc-789-task-1", "error": "timeout"}
	}`

	event, err := FromJSON([]byte(jsonData))
	require.NoError(t, err)

	assert.Equal(t, EventTaskFailed, event.Type)
	assert.Equal(t, "proc-789-task-1", event.Data["task_id"])
	assert.Equal(t, "timeout", event.Data["error"])
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte("invalid json"))
	assert.Error(t, err)
}

func TestEvent_RoundTrip(t *testing.T) {
	original := NewEvent(EventProcessStopped, map[string]interface{}{
		"record_id": "proc-1",
		"type":      "onboard-user",
	})

	data, err := original.ToJSON()
	require.NoError(t, err)

	restored, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, original.Type, restored.Type)
	assert.Equal(t, original.Data["record_id"], restored.Data["record_id"])
	assert.Equal(t, original.Data["type"], restored.Data["type"])
}

func TestProcessEventData(t *testing.T) {
	data := ProcessEventData("proc-123", "onboard-user", map[string]interface{}{
		"current_status": "IN_PROGRESS",
	})

	assert.Equal(t, "proc-123", data["record_id"])
	assert.Equal(t, "onboard-user", data["type"])
	assert.Equal(t, "IN_PROGRESS", data["current_status"])
}

func TestProcessEventData_NoExtra(t *testing.T) {
	data := ProcessEventData("proc-456", "onboard-user", nil)

	assert.Equal(t, "proc-456", data["record_id"])
	assert.Equal(t, "onboard-user", data["type"])
	assert.Len(t, data, 2)
}

func TestTaskEventData(t *testing.T) {
	data := TaskEventData("proc-123-task-0", "proc-123", "provision-account", map[string]interface{}{
		"attempts": 1,
		"error":    "timeout",
	})

	assert.Equal(t, "proc-123-task-0", data["task_id"])
	assert.Equal(t, "proc-123", data["record_id"])
	assert.Equal(t, "provision-account", data["name"])
	assert.Equal(t, 1, data["attempts"])
	assert.Equal(t, "timeout", data["error"])
}

func TestTaskEventData_NoExtra(t *testing.T) {
	data := TaskEventData("proc-456-task-1", "proc-456", "send-email", nil)

	assert.Equal(t, "proc-456-task-1", data["task_id"])
	assert.Equal(t, "proc-456", data["record_id"])
	assert.Equal(t, "send-email", data["name"])
	assert.Len(t, data, 3)
}

func TestQueueDepthData(t *testing.T) {
	data := QueueDepthData(42)

	assert.Equal(t, int64(42), data["depth"])
	assert.Len(t, data, 1)
}
