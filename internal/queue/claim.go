package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/delacruz/cliflow-go/internal/logger"
	"github.com/delacruz/cliflow-go/internal/metrics"
	"github.com/delacruz/cliflow-go/internal/model"
	"github.com/delacruz/cliflow-go/internal/orcherr"
)

// processClaim runs the handler for a single claimed work item, extending
// its lease with a heartbeat for the duration of the run, and records the
// outcome: completion, or a failure that reschedules with backoff (or
// quarantines, for payloads that can never be decoded).
func (q *Queue) processClaim(ctx context.Context, item *model.WorkItem) {
	log := logger.WithComponent("queue").With().
		Str("task_name", item.TaskName).
		Str("task_instance", item.TaskInstance).
		Logger()

	handler, ok := q.handlerFor(item.TaskName)
	if !ok {
		log.Error().Msg("no handler registered for task name; quarantining")
		now := time.Now().UTC()
		if _, err := q.store.FailWorkItem(ctx, item.TaskName, item.TaskInstance, item.Version, now, true); err != nil {
			log.Error().Err(err).Msg("failed to quarantine unroutable work item")
		}
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- handler(runCtx, json.RawMessage(item.TaskData))
	}()

	version := item.Version
	ticker := time.NewTicker(q.cfg.HeartbeatInterval)
	defer ticker.Stop()

	var handlerErr error
loop:
	for {
		select {
		case handlerErr = <-resultCh:
			break loop
		case <-ticker.C:
			now := time.Now().UTC()
			if err := q.store.Heartbeat(ctx, item.TaskName, item.TaskInstance, version, now); err != nil {
				if errors.Is(err, orcherr.ErrVersionConflict) {
					log.Warn().Msg("lease reclaimed by another node mid-execution; abandoning")
					cancel()
					<-resultCh
					return
				}
				log.Error().Err(err).Msg("heartbeat failed")
				continue
			}
			version++
		}
	}

	now := time.Now().UTC()

	if handlerErr == nil {
		if err := q.store.CompleteWorkItem(ctx, item.TaskName, item.TaskInstance, version, now); err != nil {
			log.Error().Err(err).Msg("failed to record work item completion")
		}
		return
	}

	quarantine := errors.Is(handlerErr, orcherr.ErrSerialization)
	log.Warn().Err(handlerErr).Bool("quarantine", quarantine).Msg("work item failed")

	updated, err := q.store.FailWorkItem(ctx, item.TaskName, item.TaskInstance, version, now, quarantine)
	if err != nil {
		log.Error().Err(err).Msg("failed to record work item failure")
		metrics.RecordStoreError("fail_work_item")
		return
	}
	if quarantine {
		metrics.QuarantinedWorkItems.Inc()
		return
	}

	metrics.RecordTaskRetry(item.TaskName)
	next := q.cfg.RetryPolicy.NextExecutionTime(now, updated.ConsecutiveFailures)
	if err := q.store.RescheduleWorkItem(ctx, item.TaskName, item.TaskInstance, updated.Version, next); err != nil {
		log.Error().Err(err).Msg("failed to reschedule failed work item")
	}
}
