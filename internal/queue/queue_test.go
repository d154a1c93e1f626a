package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/delacruz/cliflow-go/internal/orcherr"
	"github.com/delacruz/cliflow-go/internal/retrypolicy"
	"github.com/delacruz/cliflow-go/internal/store"
)

func newTestStore(t *testing.T) *store.SQLStore {
	t.Helper()
	s, err := store.Open(sqlite.Open(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestQueue_ScheduleAndProcessSuccess(t *testing.T) {
	st := newTestStore(t)
	q := New(st, Config{
		PollInterval:      10 * time.Millisecond,
		HeartbeatInterval: time.Hour,
		Concurrency:       2,
	})

	var got atomic.Value
	done := make(chan struct{})
	q.Register("greet", func(ctx context.Context, payload json.RawMessage) error {
		got.Store(string(payload))
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))

	require.NoError(t, q.Schedule(context.Background(), "greet", "inst-1", map[string]string{"name": "ada"}, time.Now().UTC().Add(-time.Second)))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}

	assert.Contains(t, got.Load().(string), "ada")

	// A completed work item is deleted, not left picked=false and
	// immediately reclaimable (spec.md §4.4).
	require.Eventually(t, func() bool {
		_, err := st.GetWorkItem(context.Background(), "greet", "inst-1")
		return errors.Is(err, orcherr.ErrNotFound)
	}, time.Second, 10*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, q.Stop(stopCtx))
}

func TestQueue_FailureReschedulesWithBackoff(t *testing.T) {
	st := newTestStore(t)
	q := New(st, Config{
		PollInterval:      10 * time.Millisecond,
		HeartbeatInterval: time.Hour,
		Concurrency:       2,
		RetryPolicy: &retrypolicy.Policy{
			InitialBackoff: 50 * time.Millisecond,
			MaxBackoff:     time.Second,
			BackoffFactor:  2,
		},
	})

	var calls int32
	var mu sync.Mutex
	var callTimes []time.Time

	q.Register("flaky", func(ctx context.Context, payload json.RawMessage) error {
		mu.Lock()
		callTimes = append(callTimes, time.Now())
		mu.Unlock()
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			return assert.AnError
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))
	require.NoError(t, q.Schedule(context.Background(), "flaky", "inst-1", map[string]string{}, time.Now().UTC().Add(-time.Second)))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, 3*time.Second, 20*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, q.Stop(stopCtx))
}

func TestQueue_UnknownTaskNameQuarantines(t *testing.T) {
	st := newTestStore(t)
	q := New(st, Config{PollInterval: 10 * time.Millisecond, HeartbeatInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))
	require.NoError(t, q.Schedule(context.Background(), "nonexistent", "inst-1", map[string]string{}, time.Now().UTC().Add(-time.Second)))

	require.Eventually(t, func() bool {
		claimed, err := st.ClaimDue(context.Background(), time.Now().UTC(), time.Minute, "probe", 10)
		return err == nil && len(claimed) == 0 // quarantined items are never claimable
	}, 2*time.Second, 20*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, q.Stop(stopCtx))
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := Config{}
	cfg.setDefaults()

	assert.NotEmpty(t, cfg.WorkerID)
	assert.Equal(t, 10, cfg.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.LeaseDuration)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	require.NotNil(t, cfg.RetryPolicy)
}

func TestQueue_Schedule_MarshalError(t *testing.T) {
	st := newTestStore(t)
	q := New(st, Config{})

	_, err := json.Marshal(make(chan int))
	require.Error(t, err) // sanity: channels are unmarshalable

	err = q.Schedule(context.Background(), "x", "y", make(chan int), time.Now())
	require.ErrorIs(t, err, orcherr.ErrSerialization)
}
