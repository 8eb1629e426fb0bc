// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultResolution is how often the manager checks for due tasks.
const DefaultResolution = 100 * time.Millisecond

type TimerTask struct {
	Id       int64
	Execute  time.Time
	Interval time.Duration
	Callback func()
	handle   *Handle
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// Handle refers to one scheduled task. Cancel is safe to call any number of
// times and from any goroutine. A callback that was already dispatched when
// Cancel ran may still execute; owners that care guard with their own token.
type Handle struct {
	manager   *TimerManager
	id        int64
	cancelled atomic.Bool
}

// ID returns the task id.
func (h *Handle) ID() int64 {
	return h.id
}

// Cancel stops the task. It reports whether this call did the cancelling.
func (h *Handle) Cancel() bool {
	if h == nil {
		return false
	}
	if !h.cancelled.CompareAndSwap(false, true) {
		return false
	}
	h.manager.RemoveTimer(h.id)
	return true
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool {
	return h != nil && h.cancelled.Load()
}

func (h *Handle) run(fn func()) {
	if h.cancelled.Load() {
		return
	}
	fn()
}

type TimerManager struct {
	queue      TimerQueue
	mutex      sync.Mutex
	nextId     int64
	resolution time.Duration
	done       chan struct{}
	stopOnce   sync.Once
}

// NewTimerManager starts a manager that checks for due tasks every DefaultResolution.
func NewTimerManager() *TimerManager {
	return NewTimerManagerWithResolution(DefaultResolution)
}

// NewTimerManagerWithResolution starts a manager with a custom check interval.
func NewTimerManagerWithResolution(resolution time.Duration) *TimerManager {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	manager := &TimerManager{
		queue:      make(TimerQueue, 0),
		nextId:     1,
		resolution: resolution,
		done:       make(chan struct{}),
	}
	heap.Init(&manager.queue)
	go manager.process()
	return manager
}

// AddTimer schedules callback after delay, then every interval if interval > 0.
func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	return m.Schedule(delay, interval, callback).id
}

// Schedule is AddTimer returning a cancellable handle.
func (m *TimerManager) Schedule(delay time.Duration, interval time.Duration, callback func()) *Handle {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	h := &Handle{manager: m, id: m.nextId}
	task := &TimerTask{
		Id:       m.nextId,
		Execute:  time.Now().Add(delay),
		Interval: interval,
		Callback: callback,
		handle:   h,
	}
	m.nextId++

	heap.Push(&m.queue, task)
	return h
}

// RemoveTimer drops a pending task. Unknown ids are ignored.
func (m *TimerManager) RemoveTimer(timerId int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, task := range m.queue {
		if task.Id == timerId {
			task.handle.cancelled.Store(true)
			heap.Remove(&m.queue, i)
			break
		}
	}
}

// Pending returns the number of queued tasks.
func (m *TimerManager) Pending() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

// Stop ends the processing goroutine. Queued tasks never fire afterwards.
func (m *TimerManager) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

func (m *TimerManager) process() {
	ticker := time.NewTicker(m.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			for _, task := range m.due(now) {
				go task.handle.run(task.Callback)
			}
		}
	}
}

// due pops every task whose time has come and re-queues periodic ones.
func (m *TimerManager) due(now time.Time) []*TimerTask {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var ready []*TimerTask
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}

		heap.Pop(&m.queue)
		ready = append(ready, task)

		if task.Interval > 0 {
			task.Execute = task.Execute.Add(task.Interval)
			if task.Execute.Before(now) {
				task.Execute = now.Add(task.Interval)
			}
			heap.Push(&m.queue, task)
		}
	}
	return ready
}
