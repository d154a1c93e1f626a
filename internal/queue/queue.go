// Package queue implements the durable, cluster-safe work queue (spec.md
// §4.4, component C4): a handler-registration API, a client API to
// schedule due work, a single poller, and a pool of worker goroutines
// that claim and execute due items via optimistic-concurrency CAS.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/delacruz/cliflow-go/internal/logger"
	"github.com/delacruz/cliflow-go/internal/metrics"
	"github.com/delacruz/cliflow-go/internal/model"
	"github.com/delacruz/cliflow-go/internal/orcherr"
	"github.com/delacruz/cliflow-go/internal/retrypolicy"
	"github.com/delacruz/cliflow-go/internal/store"
)

// Handler processes one claimed work item's payload. It must be safe to
// run twice on the same payload (spec.md §4.6's idempotency contract):
// the queue itself does not deduplicate retries.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Config tunes the poller and worker pool. Zero values are replaced by
// the spec.md §6 defaults in New.
type Config struct {
	WorkerID          string
	Concurrency       int
	PollInterval      time.Duration
	Batch             int
	LeaseDuration     time.Duration
	HeartbeatInterval time.Duration
	RetryPolicy       *retrypolicy.Policy
}

func (c *Config) setDefaults() {
	if c.WorkerID == "" {
		c.WorkerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.Batch <= 0 {
		c.Batch = c.Concurrency
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 5 * time.Minute
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.RetryPolicy == nil {
		c.RetryPolicy = retrypolicy.Default()
	}
}

// Queue is the durable work queue: a poller plus a bounded worker pool
// claiming rows from store.Store via compare-and-swap.
type Queue struct {
	store  store.Store
	cfg    Config
	mu     sync.RWMutex
	handlers map[string]Handler

	sem    chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New wires a Queue against st, applying cfg with defaults filled in.
func New(st store.Store, cfg Config) *Queue {
	cfg.setDefaults()
	return &Queue{
		store:    st,
		cfg:      cfg,
		handlers: make(map[string]Handler),
		sem:      make(chan struct{}, cfg.Concurrency),
		stopCh:   make(chan struct{}),
	}
}

// Register binds a Handler to a task name. Registration must happen
// before Start; the queue does not support adding handlers once running.
func (q *Queue) Register(taskName string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskName] = h
}

func (q *Queue) handlerFor(taskName string) (Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[taskName]
	return h, ok
}

// Schedule enqueues payload to run under (taskName, taskInstance) at
// executionTime. Scheduling an instance that already exists resets its
// claim state, letting the next poll round pick it up fresh.
func (q *Queue) Schedule(ctx context.Context, taskName, taskInstance string, payload any, executionTime time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: marshal payload: %w", orcherr.ErrSerialization)
	}

	item := &model.WorkItem{
		TaskName:      taskName,
		TaskInstance:  taskInstance,
		TaskData:      string(data),
		ExecutionTime: executionTime,
	}
	return q.store.ScheduleWorkItem(ctx, item)
}

// Start launches the poller and the worker pool. It returns immediately;
// processing happens on background goroutines until Stop or ctx is done.
func (q *Queue) Start(ctx context.Context) error {
	q.wg.Add(1)
	go q.pollLoop(ctx)

	logger.Info().
		Str("worker_id", q.cfg.WorkerID).
		Int("concurrency", q.cfg.Concurrency).
		Dur("poll_interval", q.cfg.PollInterval).
		Msg("work queue started")

	return nil
}

// Stop signals the poller to exit and waits for in-flight claims to
// finish, up to the context deadline.
func (q *Queue) Stop(ctx context.Context) error {
	close(q.stopCh)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Str("worker_id", q.cfg.WorkerID).Msg("work queue stopped gracefully")
	case <-ctx.Done():
		logger.Warn().Str("worker_id", q.cfg.WorkerID).Msg("work queue shutdown canceled")
		return ctx.Err()
	}
	return nil
}

func (q *Queue) pollLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.pollOnce(ctx)
		}
	}
}

func (q *Queue) pollOnce(ctx context.Context) {
	now := time.Now().UTC()
	start := time.Now()
	claimed, err := q.store.ClaimDue(ctx, now, q.cfg.LeaseDuration, q.cfg.WorkerID, q.cfg.Batch)
	metrics.RecordQueueClaim(time.Since(start).Seconds())
	if err != nil {
		logger.Error().Err(err).Msg("failed to claim due work items")
		metrics.RecordStoreError("claim_due")
		return
	}

	if depth, err := q.store.CountDueWorkItems(ctx, now); err != nil {
		logger.Error().Err(err).Msg("failed to count due work items")
	} else {
		metrics.UpdateQueueDepth(float64(depth))
	}

	for _, item := range claimed {
		select {
		case q.sem <- struct{}{}:
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		}

		q.wg.Add(1)
		go func(item *model.WorkItem) {
			defer q.wg.Done()
			defer func() { <-q.sem }()
			q.processClaim(ctx, item)
		}(item)
	}
}
