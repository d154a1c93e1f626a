package events

import (
	"context"
	"encoding/json"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// Process events
	EventProcessStarted   EventType = "process.started"
	EventProcessCompleted EventType = "process.completed"
	EventProcessFailed    EventType = "process.failed"
	EventProcessStopped   EventType = "process.stopped"

	// Task events
	EventTaskStarted   EventType = "task.started"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
	EventTaskRetrying  EventType = "task.retrying"

	// System events
	EventQueueDepth EventType = "queue.depth"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType EventType, data map[string]interface{}) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// ToJSON serializes the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes an event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Publisher defines the interface for event publishers
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Subscribe(ctx context.Context, eventTypes ...EventType) (<-chan *Event, error)
	Close() error
}

// ProcessEventData creates event data for process-record events
func ProcessEventData(recordID, processType string, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"record_id": recordID,
		"type":      processType,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// TaskEventData creates event data for task events
func TaskEventData(taskID, recordID, name string, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"task_id":   taskID,
		"record_id": recordID,
		"name":      name,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// QueueDepthData creates event data for queue depth events
func QueueDepthData(depth int64) map[string]interface{} {
	return map[string]interface{}{
		"depth": depth,
	}
}
