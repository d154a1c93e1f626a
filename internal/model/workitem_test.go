package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkItem_TableName(t *testing.T) {
	assert.Equal(t, "scheduled_tasks", WorkItem{}.TableName())
}

func TestWorkItem_LeaseExpired(t *testing.T) {
	now := time.Now()
	lease := 5 * time.Minute

	t.Run("not picked", func(t *testing.T) {
		w := WorkItem{Picked: false}
		assert.False(t, w.LeaseExpired(lease, now))
	})

	t.Run("picked, no heartbeat yet", func(t *testing.T) {
		w := WorkItem{Picked: true}
		assert.True(t, w.LeaseExpired(lease, now))
	})

	t.Run("picked, fresh heartbeat", func(t *testing.T) {
		hb := now.Add(-time.Minute)
		w := WorkItem{Picked: true, LastHeartbeat: &hb}
		assert.False(t, w.LeaseExpired(lease, now))
	})

	t.Run("picked, stale heartbeat", func(t *testing.T) {
		hb := now.Add(-10 * time.Minute)
		w := WorkItem{Picked: true, LastHeartbeat: &hb}
		assert.True(t, w.LeaseExpired(lease, now))
	})

	t.Run("picked, heartbeat exactly at lease boundary", func(t *testing.T) {
		hb := now.Add(-lease)
		w := WorkItem{Picked: true, LastHeartbeat: &hb}
		assert.True(t, w.LeaseExpired(lease, now))
	})
}
