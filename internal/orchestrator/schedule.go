package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/delacruz/cliflow-go/internal/logger"
	"github.com/delacruz/cliflow-go/internal/model"
)

// everyPrefix is the only schedule grammar this orchestrator understands:
// a fixed interval since the record's last terminal transition. A full
// cron grammar is out of scope (spec.md §1); this is the hook a real
// cron-expression evaluator would plug into, not a replacement for one.
const everyPrefix = "@every "

// scheduleLoop periodically looks for terminal ProcessRecords whose
// Schedule names an elapsed "@every <duration>" interval and starts a
// fresh run of each (spec.md §1's "optional cron scheduling").
func (o *Orchestrator) scheduleLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.ScheduleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.dueProcesses(ctx)
		}
	}
}

// dueProcesses finds terminal, scheduled ProcessRecords whose interval has
// elapsed since their last terminal timestamp and restarts each one under
// its existing id, reusing its last input data.
func (o *Orchestrator) dueProcesses(ctx context.Context) {
	log := logger.WithComponent("orchestrator-schedule")

	now := time.Now().UTC()
	for _, status := range []model.ProcessStatus{model.ProcessCompleted, model.ProcessFailed, model.ProcessStopped} {
		records, err := o.store.FindProcessRecordsByStatus(ctx, status)
		if err != nil {
			log.Error().Err(err).Str("status", status.String()).Msg("failed to list records for schedule check")
			continue
		}

		for _, record := range records {
			interval, ok := parseEveryInterval(record.Schedule)
			if !ok {
				continue
			}
			last := lastTerminalAt(record)
			if last == nil || now.Sub(*last) < interval {
				continue
			}

			input := decodeInputData(record.InputData)
			if _, err := o.startProcess(ctx, record.ID, record.Type, input); err != nil {
				log.Error().Err(err).Str("process_id", record.ID).Msg("failed to start scheduled run")
				continue
			}
			log.Info().Str("process_id", record.ID).Dur("interval", interval).Msg("started scheduled run")
		}
	}
}

// parseEveryInterval recognizes only the "@every <duration>" form;
// anything else (including real cron expressions) is left alone.
func parseEveryInterval(schedule *string) (time.Duration, bool) {
	if schedule == nil {
		return 0, false
	}
	s := strings.TrimSpace(*schedule)
	if !strings.HasPrefix(s, everyPrefix) {
		return 0, false
	}
	d, err := time.ParseDuration(strings.TrimPrefix(s, everyPrefix))
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func lastTerminalAt(record *model.ProcessRecord) *time.Time {
	switch {
	case record.CompletedWhen != nil:
		return record.CompletedWhen
	case record.FailedWhen != nil:
		return record.FailedWhen
	case record.StoppedWhen != nil:
		return record.StoppedWhen
	default:
		return nil
	}
}
