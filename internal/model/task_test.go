package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskDef_Materialize(t *testing.T) {
	def := TaskDef{
		Name:             "build",
		Command:          "make build",
		WorkingDirectory: "/srv/app",
		TimeoutMinutes:   10,
		MaxRetries:       3,
	}

	task := def.Materialize("proc-42", 2)

	assert.Equal(t, "proc-42-task-2", task.TaskID)
	assert.Equal(t, 2, task.TaskIndex)
	assert.Equal(t, "build", task.Name)
	assert.Equal(t, "make build", task.Command)
	assert.Equal(t, "/srv/app", task.WorkingDirectory)
	assert.Equal(t, 10, task.TimeoutMinutes)
	assert.Equal(t, 3, task.MaxRetries)
	assert.Equal(t, TaskPending, task.Status)
}

func TestTaskData_TableName(t *testing.T) {
	assert.Equal(t, "tasks", TaskData{}.TableName())
}
