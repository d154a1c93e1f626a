package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/delacruz/cliflow-go/internal/events"
	"github.com/delacruz/cliflow-go/internal/execkit"
	"github.com/delacruz/cliflow-go/internal/metrics"
	"github.com/delacruz/cliflow-go/internal/model"
	"github.com/delacruz/cliflow-go/internal/orcherr"
	"github.com/delacruz/cliflow-go/internal/template"
)

// handleProcessStep is the process-step handler (spec.md §4.6). It
// receives the full ProcessData payload, transitions the record to
// IN_PROGRESS on the first step, marks the current task RUNNING, and
// enqueues a cli-task for it. It does not wait for the task to finish;
// sequencing is driven by the cli-task handler enqueuing the next
// process-step.
func (o *Orchestrator) handleProcessStep(ctx context.Context, payload json.RawMessage) error {
	var pd model.ProcessData
	if err := json.Unmarshal(payload, &pd); err != nil {
		return fmt.Errorf("orchestrator: decode process-step payload: %w", orcherr.ErrSerialization)
	}

	if cached, ok := o.cache.Load(pd.ProcessID); ok {
		pd = *cached.(*model.ProcessData)
	}

	record, err := o.store.GetProcessRecord(ctx, pd.ProcessRecordID)
	if err != nil {
		return fmt.Errorf("orchestrator: process-step: get record: %w", err)
	}

	if record.CurrentStatus == model.ProcessStopped {
		o.cache.Delete(pd.ProcessID)
		return nil
	}

	now := time.Now().UTC()

	if record.CurrentStatus != model.ProcessInProgress {
		sm := model.NewProcessStateMachine(record)
		if err := sm.Transition(model.ProcessInProgress, now); err != nil {
			return fmt.Errorf("orchestrator: process-step: transition to in-progress: %w", err)
		}
		record.CurrentTaskIndex = pd.CurrentTaskIndex
		if err := o.store.UpdateProcessRecord(ctx, record); err != nil {
			return fmt.Errorf("orchestrator: process-step: persist record: %w", err)
		}
		o.publish(ctx, events.EventProcessStarted, record.ID, record.Type, nil)
	}

	task := pd.CurrentTask()
	if task == nil {
		return fmt.Errorf("orchestrator: process-step: no task at index %d for process %s", pd.CurrentTaskIndex, pd.ProcessID)
	}

	model.NewTaskStateMachine(task).Start(now)
	if err := o.store.UpsertTask(ctx, task); err != nil {
		return fmt.Errorf("orchestrator: process-step: persist task: %w", err)
	}

	o.cache.Store(pd.ProcessID, &pd)

	if err := o.queue.Schedule(ctx, model.TaskNameCLITask, task.TaskID, task, now); err != nil {
		return fmt.Errorf("orchestrator: process-step: schedule cli-task: %w", err)
	}
	return nil
}

// handleCLITask is the cli-task handler (spec.md §4.6). It receives a
// single TaskData payload, expands its command template against the
// owning process's accumulated context, runs it, and either advances the
// process (schedules the next process-step or marks it COMPLETED) or
// retries-or-fails it.
func (o *Orchestrator) handleCLITask(ctx context.Context, payload json.RawMessage) error {
	var task model.TaskData
	if err := json.Unmarshal(payload, &task); err != nil {
		return fmt.Errorf("orchestrator: decode cli-task payload: %w", orcherr.ErrSerialization)
	}

	// Idempotency: a re-delivered payload for an already-completed task
	// (e.g. a reclaimed lease whose original execution still commits) is a
	// no-op (spec.md §8).
	current, err := o.store.GetTask(ctx, task.TaskID)
	switch {
	case errors.Is(err, orcherr.ErrNotFound):
		// first delivery before the process-step's upsert landed; use the
		// payload as-is.
	case err != nil:
		return fmt.Errorf("orchestrator: cli-task: get task: %w", err)
	default:
		if current.Status == model.TaskCompleted {
			return nil
		}
		task = *current
	}

	pd, err := o.resolveProcessData(ctx, task.ProcessRecordID)
	if err != nil {
		return fmt.Errorf("orchestrator: cli-task: resolve process data: %w", err)
	}

	command := template.Expand(task.Command, template.Layers{
		InputFields: wellKnownInputFields(pd.InputData),
		Config:      o.cfg.TemplateConfig,
		Context:     pd.ProcessContext,
	})

	timeout := time.Duration(task.TimeoutMinutes) * time.Minute
	result, execErr := o.exec.Run(ctx, command, task.WorkingDirectory, timeout)
	now := time.Now().UTC()

	// Re-read the record after the (possibly long-running) child process
	// finishes: StopProcess is never forcibly killing an in-flight
	// command, so the advance step here is what actually honors a stop
	// requested mid-execution (spec.md §4.6).
	record, err := o.store.GetProcessRecord(ctx, task.ProcessRecordID)
	if err != nil {
		return fmt.Errorf("orchestrator: cli-task: get record: %w", err)
	}
	if record.CurrentStatus == model.ProcessStopped {
		o.cache.Delete(task.ProcessRecordID)
		return nil
	}

	if execErr == nil {
		return o.handleTaskSuccess(ctx, record, pd, &task, result, now)
	}
	return o.handleTaskFailure(ctx, record, pd, &task, result, execErr, now)
}

func (o *Orchestrator) handleTaskSuccess(ctx context.Context, record *model.ProcessRecord, pd *model.ProcessData, task *model.TaskData, result execkit.ExecutionResult, now time.Time) error {
	model.NewTaskStateMachine(task).Complete(now, result.ExitCode, result.Output)
	task.OutputTruncated = result.OutputTruncated
	if err := o.store.UpsertTask(ctx, task); err != nil {
		return fmt.Errorf("orchestrator: cli-task success: persist task: %w", err)
	}
	o.publish(ctx, events.EventTaskCompleted, record.ID, record.Type, events.TaskEventData(task.TaskID, record.ID, task.Name, nil))
	if task.StartedAt != nil {
		metrics.RecordTaskCompletion(task.Name, "completed", now.Sub(*task.StartedAt).Seconds())
	}

	pd.ProcessContext.Set(task.Name, result.ExitCode, result.Output)
	pd.CurrentTaskIndex++
	pd.UpdatedAt = now
	o.cache.Store(pd.ProcessID, pd)

	record.CurrentTaskIndex = pd.CurrentTaskIndex

	if pd.IsComplete() {
		sm := model.NewProcessStateMachine(record)
		if err := sm.Transition(model.ProcessCompleted, now); err != nil {
			return fmt.Errorf("orchestrator: cli-task success: transition to completed: %w", err)
		}
		if err := o.store.UpdateProcessRecord(ctx, record); err != nil {
			return fmt.Errorf("orchestrator: cli-task success: persist record: %w", err)
		}
		o.cache.Delete(pd.ProcessID)
		o.publish(ctx, events.EventProcessCompleted, record.ID, record.Type, nil)
		metrics.RecordProcessCompletion(record.Type, "completed", now.Sub(record.CreatedAt).Seconds())
		return nil
	}

	if err := o.store.UpdateProcessRecord(ctx, record); err != nil {
		return fmt.Errorf("orchestrator: cli-task success: persist record: %w", err)
	}
	if err := o.queue.Schedule(ctx, model.TaskNameProcessStep, pd.ProcessID, pd, now); err != nil {
		return fmt.Errorf("orchestrator: cli-task success: schedule next process-step: %w", err)
	}
	return nil
}

func (o *Orchestrator) handleTaskFailure(ctx context.Context, record *model.ProcessRecord, pd *model.ProcessData, task *model.TaskData, result execkit.ExecutionResult, execErr error, now time.Time) error {
	// exit_code is only meaningful when the process actually exited
	// (spec.md §3 invariant); a timeout or invocation failure never ran
	// to completion.
	var exitCode *int
	if errors.Is(execErr, orcherr.ErrExecutionNonZeroExit) {
		ec := result.ExitCode
		exitCode = &ec
	}
	model.NewTaskStateMachine(task).Fail(now, exitCode, result.Output, result.ErrorMessage)
	task.OutputTruncated = result.OutputTruncated

	if task.CanRetry() {
		model.NewTaskStateMachine(task).ResetForRetry()
		if err := o.store.UpsertTask(ctx, task); err != nil {
			return fmt.Errorf("orchestrator: cli-task failure: persist retrying task: %w", err)
		}
		o.publish(ctx, events.EventTaskRetrying, record.ID, record.Type, events.TaskEventData(task.TaskID, record.ID, task.Name, nil))

		next := now.Add(o.cfg.RetryBackoff)
		if err := o.queue.Schedule(ctx, model.TaskNameCLITask, task.TaskID, task, next); err != nil {
			return fmt.Errorf("orchestrator: cli-task failure: schedule retry: %w", err)
		}
		return nil
	}

	if err := o.store.UpsertTask(ctx, task); err != nil {
		return fmt.Errorf("orchestrator: cli-task failure: persist failed task: %w", err)
	}
	o.publish(ctx, events.EventTaskFailed, record.ID, record.Type, events.TaskEventData(task.TaskID, record.ID, task.Name, nil))
	if task.StartedAt != nil {
		metrics.RecordTaskCompletion(task.Name, "failed", now.Sub(*task.StartedAt).Seconds())
	}

	record.LastErrorMessage = fmt.Sprintf("%s: %s", task.Name, task.ErrorMessage)
	sm := model.NewProcessStateMachine(record)
	if err := sm.Transition(model.ProcessFailed, now); err != nil {
		return fmt.Errorf("orchestrator: cli-task failure: transition to failed: %w", err)
	}
	record.LastErrorMessage = fmt.Sprintf("%s: %s", task.Name, task.ErrorMessage)
	if err := o.store.UpdateProcessRecord(ctx, record); err != nil {
		return fmt.Errorf("orchestrator: cli-task failure: persist record: %w", err)
	}

	o.cache.Delete(pd.ProcessID)
	o.publish(ctx, events.EventProcessFailed, record.ID, record.Type, nil)
	metrics.RecordProcessCompletion(record.Type, "failed", now.Sub(record.CreatedAt).Seconds())
	return nil
}

// resolveProcessData returns the cached ProcessData for processID,
// reconstructing it from the store if the cache has no entry (a peer node
// picking up a reclaimed work item after a crash, spec.md §9).
func (o *Orchestrator) resolveProcessData(ctx context.Context, processID string) (*model.ProcessData, error) {
	if v, ok := o.cache.Load(processID); ok {
		return v.(*model.ProcessData), nil
	}

	record, err := o.store.GetProcessRecord(ctx, processID)
	if err != nil {
		return nil, err
	}
	tasks, err := o.store.ListTasksForProcess(ctx, processID)
	if err != nil {
		return nil, err
	}

	pd := &model.ProcessData{
		ProcessID:        processID,
		ProcessRecordID:  processID,
		TypeName:         record.Type,
		InputData:        decodeInputData(record.InputData),
		TotalTasks:       record.TotalTasks,
		CurrentTaskIndex: record.CurrentTaskIndex,
		Status:           record.CurrentStatus,
		ProcessContext:   model.ProcessContext{},
		Tasks:            tasks,
		CreatedAt:        record.CreatedAt,
		UpdatedAt:        record.UpdatedAt,
	}
	for _, t := range tasks {
		if t.Status == model.TaskCompleted {
			exitCode := 0
			if t.ExitCode != nil {
				exitCode = *t.ExitCode
			}
			pd.ProcessContext.Set(t.Name, exitCode, t.Output)
		}
	}

	o.cache.Store(processID, pd)
	return pd, nil
}

// wellKnownInputFields projects the spec.md §4.2 well-known keys
// (input_file, output_dir, user_id) out of the run's arbitrary input data,
// coercing scalar values to strings for template substitution.
func wellKnownInputFields(inputData map[string]any) map[string]string {
	fields := make(map[string]string, 3)
	for _, key := range []string{"input_file", "output_dir", "user_id"} {
		if v, ok := inputData[key]; ok {
			fields[key] = fmt.Sprintf("%v", v)
		}
	}
	return fields
}
