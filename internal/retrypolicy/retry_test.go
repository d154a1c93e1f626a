package retrypolicy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/delacruz/cliflow-go/internal/model"
)

func TestPolicy_CalculateBackoff(t *testing.T) {
	p := &Policy{
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
		BackoffFactor:  2.0,
		JitterFactor:   0,
	}

	assert.Equal(t, time.Second, p.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, p.CalculateBackoff(1))
	assert.Equal(t, 4*time.Second, p.CalculateBackoff(2))
}

func TestPolicy_CalculateBackoff_CapsAtMax(t *testing.T) {
	p := &Policy{
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  10.0,
		JitterFactor:   0,
	}

	assert.Equal(t, 5*time.Second, p.CalculateBackoff(5))
}

func TestPolicy_CalculateBackoff_JitterWithinBounds(t *testing.T) {
	p := &Policy{
		InitialBackoff: 10 * time.Second,
		MaxBackoff:     time.Minute,
		BackoffFactor:  1.0,
		JitterFactor:   0.5,
	}

	for i := 0; i < 50; i++ {
		d := p.CalculateBackoff(1)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 15*time.Second)
	}
}

func TestPolicy_ShouldRetry(t *testing.T) {
	p := Default()

	task := &model.TaskData{RetryCount: 1, MaxRetries: 3}
	assert.True(t, p.ShouldRetry(task))

	task.RetryCount = 3
	assert.False(t, p.ShouldRetry(task))
}

func TestPolicy_NextRetryTime(t *testing.T) {
	p := &Policy{InitialBackoff: 30 * time.Second, MaxBackoff: time.Hour, BackoffFactor: 2.0}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	task := &model.TaskData{RetryCount: 0, MaxRetries: 3}

	got := p.NextRetryTime(now, task)
	assert.Equal(t, now.Add(30*time.Second), got)
}

func TestPolicy_Evaluate(t *testing.T) {
	p := &Policy{InitialBackoff: 30 * time.Second, MaxBackoff: time.Hour, BackoffFactor: 2.0}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	task := &model.TaskData{RetryCount: 1, MaxRetries: 3}

	d := p.Evaluate(now, task)
	assert.True(t, d.ShouldRetry)
	assert.Equal(t, 2, d.AttemptsLeft)
	assert.Equal(t, now.Add(d.BackoffDelay), d.NextRetryAt)
}

func TestDefault(t *testing.T) {
	p := Default()
	assert.Equal(t, 30*time.Second, p.InitialBackoff)
	assert.Equal(t, 5*time.Minute, p.MaxBackoff)
	assert.Equal(t, 2.0, p.BackoffFactor)
}
