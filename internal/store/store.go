// Package store persists ProcessRecord, TaskData, and WorkItem rows over
// gorm (spec.md §3/§6, component C5). It exposes the CRUD surface the
// orchestrator needs plus the optimistic-concurrency primitives that back
// the durable work queue (spec.md §4.4).
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/delacruz/cliflow-go/internal/model"
	"github.com/delacruz/cliflow-go/internal/orcherr"
)

// Store is the persistence surface the orchestrator and queue depend on.
type Store interface {
	// Process records
	CreateProcessRecord(ctx context.Context, r *model.ProcessRecord) error
	GetProcessRecord(ctx context.Context, id string) (*model.ProcessRecord, error)
	UpdateProcessRecord(ctx context.Context, r *model.ProcessRecord) error
	DeleteProcessRecord(ctx context.Context, id string) error
	FindProcessRecordsByStatus(ctx context.Context, status model.ProcessStatus) ([]*model.ProcessRecord, error)

	// Task rows
	UpsertTask(ctx context.Context, t *model.TaskData) error
	GetTask(ctx context.Context, taskID string) (*model.TaskData, error)
	ListTasksForProcess(ctx context.Context, processRecordID string) ([]*model.TaskData, error)

	// Work queue (C4 primitives)
	ScheduleWorkItem(ctx context.Context, item *model.WorkItem) error
	GetWorkItem(ctx context.Context, taskName, taskInstance string) (*model.WorkItem, error)
	CountDueWorkItems(ctx context.Context, now time.Time) (int64, error)
	ClaimDue(ctx context.Context, now time.Time, leaseDuration time.Duration, workerID string, batch int) ([]*model.WorkItem, error)
	Heartbeat(ctx context.Context, taskName, taskInstance string, version int64, now time.Time) error
	CompleteWorkItem(ctx context.Context, taskName, taskInstance string, version int64, now time.Time) error
	FailWorkItem(ctx context.Context, taskName, taskInstance string, version int64, now time.Time, quarantine bool) (*model.WorkItem, error)
	RescheduleWorkItem(ctx context.Context, taskName, taskInstance string, version int64, nextExecution time.Time) error

	Ping(ctx context.Context) error
	Close() error
}

// SQLStore is the gorm-backed Store implementation.
type SQLStore struct {
	db *gorm.DB
}

// Open connects through dialector (postgres.Open(dsn) or sqlite.Open(dsn),
// built by the caller) and runs AutoMigrate for the three tables
// spec.md §6 names.
func Open(dialector gorm.Dialector) (*SQLStore, error) {
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	if err := db.AutoMigrate(&model.ProcessRecord{}, &model.TaskData{}, &model.WorkItem{}); err != nil {
		return nil, fmt.Errorf("store: automigrate: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// NewWithDB wraps an already-open *gorm.DB, useful for tests that share a
// connection across Store and other components.
func NewWithDB(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) CreateProcessRecord(ctx context.Context, r *model.ProcessRecord) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("store: create process record: %w", classify(err))
	}
	return nil
}

func (s *SQLStore) GetProcessRecord(ctx context.Context, id string) (*model.ProcessRecord, error) {
	var r model.ProcessRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, orcherr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get process record: %w", classify(err))
	}
	return &r, nil
}

// UpdateProcessRecord persists r as-is. Callers that must never downgrade a
// terminal status (spec.md invariant) go through
// internal/model.ProcessStateMachine before calling this.
func (s *SQLStore) UpdateProcessRecord(ctx context.Context, r *model.ProcessRecord) error {
	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		return fmt.Errorf("store: update process record: %w", classify(err))
	}
	return nil
}

func (s *SQLStore) DeleteProcessRecord(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND current_status <> ?", id, model.ProcessInProgress.String()).
		Delete(&model.ProcessRecord{})
	if res.Error != nil {
		return fmt.Errorf("store: delete process record: %w", classify(res.Error))
	}
	if res.RowsAffected == 0 {
		return orcherr.ErrValidation
	}
	return nil
}

func (s *SQLStore) FindProcessRecordsByStatus(ctx context.Context, status model.ProcessStatus) ([]*model.ProcessRecord, error) {
	var records []*model.ProcessRecord
	err := s.db.WithContext(ctx).Where("current_status = ?", status.String()).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("store: find process records by status: %w", classify(err))
	}
	return records, nil
}

func (s *SQLStore) UpsertTask(ctx context.Context, t *model.TaskData) error {
	err := s.db.WithContext(ctx).Save(t).Error
	if err != nil {
		return fmt.Errorf("store: upsert task: %w", classify(err))
	}
	return nil
}

func (s *SQLStore) GetTask(ctx context.Context, taskID string) (*model.TaskData, error) {
	var t model.TaskData
	err := s.db.WithContext(ctx).Where("id = ?", taskID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, orcherr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get task: %w", classify(err))
	}
	return &t, nil
}

func (s *SQLStore) ListTasksForProcess(ctx context.Context, processRecordID string) ([]*model.TaskData, error) {
	var tasks []*model.TaskData
	err := s.db.WithContext(ctx).
		Where("process_record_id = ?", processRecordID).
		Order("task_index ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("store: list tasks for process: %w", classify(err))
	}
	return tasks, nil
}

// classify maps a driver/gorm error to a broad transient/fatal sentinel so
// callers (the queue's poller in particular) can decide whether to retry
// the operation or halt. Anything not recognized as a connectivity error is
// treated as fatal, matching spec.md §7's conservative default.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return orcherr.ErrNotFound
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %v", orcherr.ErrTransientStore, err)
	}
	return fmt.Errorf("%w: %v", orcherr.ErrFatalStore, err)
}

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection reset", "broken pipe", "timeout", "deadlock", "too many connections", "connection refused"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
