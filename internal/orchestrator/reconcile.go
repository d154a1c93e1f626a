package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/delacruz/cliflow-go/internal/logger"
	"github.com/delacruz/cliflow-go/internal/metrics"
	"github.com/delacruz/cliflow-go/internal/model"
	"github.com/delacruz/cliflow-go/internal/orcherr"
)

// reconcileLoop runs the sweep spec.md §9 prescribes as the alternative to
// a transactional "record write + next-item enqueue": periodically find
// records stranded IN_PROGRESS with their latest task COMPLETED but no
// pending work item, and re-enqueue them.
func (o *Orchestrator) reconcileLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.reconcileOnce(ctx)
		}
	}
}

func (o *Orchestrator) reconcileOnce(ctx context.Context) {
	log := logger.WithComponent("orchestrator-reconcile")

	records, err := o.store.FindProcessRecordsByStatus(ctx, model.ProcessInProgress)
	if err != nil {
		log.Error().Err(err).Msg("failed to list in-progress records")
		return
	}

	now := time.Now().UTC()
	for _, record := range records {
		if o.reconcileRecordNeedsRequeue(ctx, record) {
			pd, err := o.resolveProcessData(ctx, record.ID)
			if err != nil {
				log.Error().Err(err).Str("process_id", record.ID).Msg("failed to resolve process data for reconciliation")
				continue
			}
			if err := o.queue.Schedule(ctx, model.TaskNameProcessStep, record.ID, pd, now); err != nil {
				log.Error().Err(err).Str("process_id", record.ID).Msg("failed to re-enqueue stranded process-step")
				continue
			}
			metrics.RecordReconciledProcess()
			log.Warn().Str("process_id", record.ID).Int("task_index", record.CurrentTaskIndex).Msg("re-enqueued stranded process")
		}
	}
}

func (o *Orchestrator) reconcileRecordNeedsRequeue(ctx context.Context, record *model.ProcessRecord) bool {
	if record.CurrentTaskIndex <= 0 || record.CurrentTaskIndex >= record.TotalTasks {
		return false
	}

	tasks, err := o.store.ListTasksForProcess(ctx, record.ID)
	if err != nil || len(tasks) <= record.CurrentTaskIndex-1 {
		return false
	}
	if tasks[record.CurrentTaskIndex-1].Status != model.TaskCompleted {
		return false
	}

	if _, err := o.store.GetWorkItem(ctx, model.TaskNameProcessStep, record.ID); err == nil {
		return false // a process-step is already pending
	} else if !errors.Is(err, orcherr.ErrNotFound) {
		return false
	}

	nextTask := tasks[record.CurrentTaskIndex]
	if _, err := o.store.GetWorkItem(ctx, model.TaskNameCLITask, nextTask.TaskID); err == nil {
		return false // a cli-task is already pending for the next task
	} else if !errors.Is(err, orcherr.ErrNotFound) {
		return false
	}

	return true
}
