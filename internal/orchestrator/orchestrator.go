// Package orchestrator owns process lifecycle (spec.md §4.6, component
// C6): it registers the process-step and cli-task handlers on the work
// queue, drives the ProcessRecord/TaskData state machines, and exposes the
// in-process StartProcess/StopProcess/GetProcessTasks API.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/delacruz/cliflow-go/internal/events"
	"github.com/delacruz/cliflow-go/internal/execkit"
	"github.com/delacruz/cliflow-go/internal/logger"
	"github.com/delacruz/cliflow-go/internal/metrics"
	"github.com/delacruz/cliflow-go/internal/model"
	"github.com/delacruz/cliflow-go/internal/orcherr"
	"github.com/delacruz/cliflow-go/internal/queue"
	"github.com/delacruz/cliflow-go/internal/registry"
	"github.com/delacruz/cliflow-go/internal/store"
)

// Config tunes the orchestrator's defaults and reconciliation behavior.
// Zero values are replaced by the spec.md §6 defaults in New.
type Config struct {
	DefaultTaskTimeout    time.Duration
	DefaultMaxRetries     int
	RetryBackoff          time.Duration
	ReconcileInterval     time.Duration
	ScheduleCheckInterval time.Duration
	TemplateConfig        map[string]string
}

func (c *Config) setDefaults() {
	if c.DefaultTaskTimeout <= 0 {
		c.DefaultTaskTimeout = 60 * time.Minute
	}
	if c.DefaultMaxRetries <= 0 {
		c.DefaultMaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 30 * time.Second
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = 30 * time.Second
	}
	if c.ScheduleCheckInterval <= 0 {
		c.ScheduleCheckInterval = 30 * time.Second
	}
}

// Orchestrator drives process execution end to end. It registers two
// handlers on the queue (process-step, cli-task) and keeps a best-effort
// in-memory ProcessData cache keyed by process id; the cache speeds up
// context propagation but every field it holds can be reconstructed from
// the store alone (spec.md §9's crash-recovery note).
type Orchestrator struct {
	store    store.Store
	registry *registry.Registry
	queue    *queue.Queue
	exec     *execkit.Executor
	pub      events.Publisher
	cfg      Config

	cache sync.Map // process id -> *model.ProcessData

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New wires an Orchestrator against its dependencies. pub may be nil, in
// which case event publication is a no-op.
func New(st store.Store, reg *registry.Registry, q *queue.Queue, exec *execkit.Executor, pub events.Publisher, cfg Config) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{
		store:    st,
		registry: reg,
		queue:    q,
		exec:     exec,
		pub:      pub,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

// Start registers the process-step and cli-task handlers, starts the work
// queue, and launches the reconciliation sweep. It returns once the queue
// has started; processing happens on background goroutines.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.queue.Register(model.TaskNameProcessStep, o.handleProcessStep)
	o.queue.Register(model.TaskNameCLITask, o.handleCLITask)

	if err := o.queue.Start(ctx); err != nil {
		return fmt.Errorf("orchestrator: start queue: %w", err)
	}

	o.wg.Add(1)
	go o.reconcileLoop(ctx)

	o.wg.Add(1)
	go o.scheduleLoop(ctx)

	logger.Info().Dur("reconcile_interval", o.cfg.ReconcileInterval).Msg("orchestrator started")
	return nil
}

// Stop halts the reconciliation sweep and the underlying work queue,
// waiting up to ctx's deadline for both to finish.
func (o *Orchestrator) Stop(ctx context.Context) error {
	close(o.stopCh)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return o.queue.Stop(ctx)
}

// StartProcess materializes a fresh run of typeName under a generated
// process id and enqueues its first process-step.
func (o *Orchestrator) StartProcess(ctx context.Context, typeName string, inputData map[string]any) (string, error) {
	return o.startProcess(ctx, uuid.New().String(), typeName, inputData)
}

// StartProcessWithID is the caller-supplied-id overload of StartProcess
// (spec.md §6). If id already names a record, this is a restart: it must
// be in a state that can legally move to IN_PROGRESS.
func (o *Orchestrator) StartProcessWithID(ctx context.Context, id, typeName string, inputData map[string]any) (string, error) {
	return o.startProcess(ctx, id, typeName, inputData)
}

func (o *Orchestrator) startProcess(ctx context.Context, id, typeName string, inputData map[string]any) (string, error) {
	pt, err := o.registry.Get(typeName)
	if err != nil {
		return "", fmt.Errorf("orchestrator: start process: %w", err)
	}

	now := time.Now().UTC()
	encodedInput, err := encodeInputData(inputData)
	if err != nil {
		return "", fmt.Errorf("orchestrator: encode input data: %w", orcherr.ErrSerialization)
	}

	record, err := o.store.GetProcessRecord(ctx, id)
	switch {
	case errors.Is(err, orcherr.ErrNotFound):
		record = &model.ProcessRecord{
			ID:            id,
			Type:          typeName,
			InputData:     encodedInput,
			CurrentStatus: model.ProcessPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := o.store.CreateProcessRecord(ctx, record); err != nil {
			return "", fmt.Errorf("orchestrator: create process record: %w", err)
		}
	case err != nil:
		return "", fmt.Errorf("orchestrator: get process record: %w", err)
	default:
		if record.CurrentStatus == model.ProcessInProgress {
			return "", fmt.Errorf("orchestrator: process %s: %w", id, orcherr.ErrAlreadyRunning)
		}
		record.Type = typeName
		record.InputData = encodedInput
		record.UpdatedAt = now
	}

	// Restart and fresh-start both reset the cursor to the current
	// registry's task list; the process-step handler performs the actual
	// IN_PROGRESS transition and clears terminal timestamps.
	record.CurrentTaskIndex = 0
	record.TotalTasks = len(pt.Tasks)
	if err := o.store.UpdateProcessRecord(ctx, record); err != nil {
		return "", fmt.Errorf("orchestrator: persist process record: %w", err)
	}

	tasks := make([]*model.TaskData, len(pt.Tasks))
	for i, def := range pt.Tasks {
		td := def.Materialize(id, i)
		td.ProcessRecordID = id
		if td.TimeoutMinutes <= 0 {
			td.TimeoutMinutes = int(o.cfg.DefaultTaskTimeout / time.Minute)
		}
		if err := o.store.UpsertTask(ctx, td); err != nil {
			return "", fmt.Errorf("orchestrator: persist task %s: %w", td.TaskID, err)
		}
		tasks[i] = td
	}

	pd := &model.ProcessData{
		ProcessID:        id,
		ProcessRecordID:  id,
		TypeName:         typeName,
		InputData:        inputData,
		TotalTasks:       len(tasks),
		CurrentTaskIndex: 0,
		Status:           model.ProcessPending,
		ProcessContext:   model.ProcessContext{},
		Tasks:            tasks,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	o.cache.Store(id, pd)

	if err := o.queue.Schedule(ctx, model.TaskNameProcessStep, id, pd, now); err != nil {
		return "", fmt.Errorf("orchestrator: schedule first process-step: %w", err)
	}

	metrics.RecordProcessStart(typeName)
	return id, nil
}

// StopProcess marks recordID STOPPED and evicts its cache entry. An
// in-flight cli-task is not forcibly killed (spec.md §4.6): its completion
// handler will observe STOPPED and skip the advance step.
func (o *Orchestrator) StopProcess(ctx context.Context, recordID string) error {
	record, err := o.store.GetProcessRecord(ctx, recordID)
	if err != nil {
		return fmt.Errorf("orchestrator: stop process: %w", err)
	}

	if record.CurrentStatus.IsTerminal() {
		return nil
	}

	now := time.Now().UTC()
	sm := model.NewProcessStateMachine(record)
	if err := sm.Transition(model.ProcessStopped, now); err != nil {
		return fmt.Errorf("orchestrator: stop process %s: %w", recordID, orcherr.ErrValidation)
	}
	if err := o.store.UpdateProcessRecord(ctx, record); err != nil {
		return fmt.Errorf("orchestrator: persist stopped record: %w", err)
	}

	o.cache.Delete(recordID)
	o.publish(ctx, events.EventProcessStopped, recordID, record.Type, nil)
	return nil
}

// GetProcessTasks returns the current snapshot of recordID's task rows. It
// never waits on in-flight work (spec.md §7).
func (o *Orchestrator) GetProcessTasks(ctx context.Context, recordID string) ([]*model.TaskData, error) {
	tasks, err := o.store.ListTasksForProcess(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: get process tasks: %w", err)
	}
	return tasks, nil
}

// GetProcessRecord returns recordID's current ProcessRecord snapshot.
func (o *Orchestrator) GetProcessRecord(ctx context.Context, recordID string) (*model.ProcessRecord, error) {
	record, err := o.store.GetProcessRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: get process record: %w", err)
	}
	return record, nil
}

func (o *Orchestrator) publish(ctx context.Context, eventType events.EventType, recordID, processType string, extra map[string]interface{}) {
	if o.pub == nil {
		return
	}
	event := events.NewEvent(eventType, events.ProcessEventData(recordID, processType, extra))
	if err := o.pub.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Str("process_id", recordID).Msg("failed to publish process event")
	}
}

func encodeInputData(m map[string]any) (string, error) {
	if m == nil {
		m = map[string]any{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeInputData(s string) map[string]any {
	if s == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return map[string]any{}
	}
	return m
}
