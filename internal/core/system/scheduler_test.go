package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_FiresOnInterval(t *testing.T) {
	t.Parallel()
	s := NewScheduler()
	calls := 0
	s.Every("poll", time.Second, func() { calls++ })

	for i := 0; i < 4; i++ {
		s.Update(200 * time.Millisecond)
	}
	assert.Equal(t, 0, calls)

	s.Update(200 * time.Millisecond)
	assert.Equal(t, 1, calls)

	for i := 0; i < 5; i++ {
		s.Update(200 * time.Millisecond)
	}
	assert.Equal(t, 2, calls)
}

func TestScheduler_LongTickDoesNotBurst(t *testing.T) {
	t.Parallel()
	s := NewScheduler()
	calls := 0
	s.Every("poll", time.Second, func() { calls++ })

	s.Update(10 * time.Second)
	assert.Equal(t, 1, calls)
	s.Update(999 * time.Millisecond)
	assert.Equal(t, 1, calls)
	s.Update(time.Millisecond)
	assert.Equal(t, 2, calls)
}

func TestScheduler_CancelIsIdempotent(t *testing.T) {
	t.Parallel()
	s := NewScheduler()
	calls := 0
	h := s.Every("poll", time.Second, func() { calls++ })
	require.True(t, h.Active())
	assert.Equal(t, "poll", h.Name())

	h.Cancel()
	h.Cancel()
	assert.False(t, h.Active())
	assert.False(t, s.Has("poll"))
	assert.False(t, s.Remove("poll"))

	s.Update(5 * time.Second)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_ReplaceByName(t *testing.T) {
	t.Parallel()
	s := NewScheduler()
	var fired []string
	old := s.Every("poll", time.Second, func() { fired = append(fired, "old") })
	s.Every("poll", time.Second, func() { fired = append(fired, "new") })

	assert.False(t, old.Active())
	assert.Equal(t, 1, s.Len())

	// Cancelling the stale handle must not remove its replacement.
	old.Cancel()
	assert.True(t, s.Has("poll"))

	s.Update(time.Second)
	assert.Equal(t, []string{"new"}, fired)
}

func TestScheduler_CallbackCancelsItself(t *testing.T) {
	t.Parallel()
	s := NewScheduler()
	calls := 0
	var h Handle
	h = s.Every("once", time.Second, func() {
		calls++
		h.Cancel()
	})

	s.Update(time.Second)
	s.Update(time.Second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_CallbackSchedulesTask(t *testing.T) {
	t.Parallel()
	s := NewScheduler()
	childCalls := 0
	s.Every("parent", time.Second, func() {
		if !s.Has("child") {
			s.Every("child", time.Second, func() { childCalls++ })
		}
	})

	s.Update(time.Second)
	assert.True(t, s.Has("child"))
	assert.Equal(t, 0, childCalls, "new task waits a full interval")

	s.Update(time.Second)
	assert.Equal(t, 1, childCalls)
}
