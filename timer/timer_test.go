package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *TimerManager {
	t.Helper()
	m := NewTimerManagerWithResolution(time.Millisecond)
	t.Cleanup(m.Stop)
	return m
}

func TestTimerManager_OneShotFires(t *testing.T) {
	m := newTestManager(t)

	fired := make(chan struct{}, 1)
	m.Schedule(5*time.Millisecond, 0, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	require.Eventually(t, func() bool { return m.Pending() == 0 }, time.Second, time.Millisecond)
}

func TestTimerManager_PeriodicFiresRepeatedly(t *testing.T) {
	m := newTestManager(t)

	var count atomic.Int32
	h := m.Schedule(2*time.Millisecond, 2*time.Millisecond, func() { count.Add(1) })

	require.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, h.Cancel())
	assert.Equal(t, 0, m.Pending())
}

func TestHandle_CancelBeforeDue(t *testing.T) {
	m := newTestManager(t)

	var fired atomic.Bool
	h := m.Schedule(20*time.Millisecond, 0, func() { fired.Store(true) })

	assert.True(t, h.Cancel())
	assert.True(t, h.Cancelled())

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestHandle_CancelIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	h := m.Schedule(time.Hour, 0, func() {})

	assert.True(t, h.Cancel())
	assert.False(t, h.Cancel())
	assert.False(t, h.Cancel())

	var nilHandle *Handle
	assert.False(t, nilHandle.Cancel())
	assert.False(t, nilHandle.Cancelled())
}

func TestTimerManager_RemoveTimerByID(t *testing.T) {
	m := newTestManager(t)

	var fired atomic.Bool
	id := m.AddTimer(20*time.Millisecond, 0, func() { fired.Store(true) })
	m.RemoveTimer(id)
	m.RemoveTimer(id + 100)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestTimerManager_OrdersByExecuteTime(t *testing.T) {
	m := newTestManager(t)

	order := make(chan int, 3)
	m.Schedule(30*time.Millisecond, 0, func() { order <- 3 })
	m.Schedule(5*time.Millisecond, 0, func() { order <- 1 })
	m.Schedule(15*time.Millisecond, 0, func() { order <- 2 })

	for want := 1; want <= 3; want++ {
		select {
		case got := <-order:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("timer %d did not fire", want)
		}
	}
}

func TestTimerManager_StopHaltsProcessing(t *testing.T) {
	m := NewTimerManagerWithResolution(time.Millisecond)
	m.Stop()
	m.Stop()

	var fired atomic.Bool
	m.Schedule(time.Millisecond, 0, func() { fired.Store(true) })

	time.Sleep(30 * time.Millisecond)
	assert.False(t, fired.Load())
}
