package timer

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler with a clock that moves only when Advance is
// called. Callbacks are called synchronously from Advance.
type Manual struct {
	locker  sync.Mutex
	now     time.Time
	nextID  uint64
	pending []*manualHandle
}

var _ Scheduler = (*Manual)(nil)

func NewManual(now time.Time) *Manual {
	return &Manual{
		now: now,
	}
}

type manualHandle struct {
	scheduler *Manual
	id        uint64
	at        time.Time
	callback  func()
}

func (m *Manual) Now() time.Time {
	m.locker.Lock()
	defer m.locker.Unlock()
	return m.now
}

func (m *Manual) Schedule(delay time.Duration, callback func()) Handle {
	m.locker.Lock()
	defer m.locker.Unlock()
	m.nextID++
	h := &manualHandle{
		scheduler: m,
		id:        m.nextID,
		at:        m.now.Add(delay),
		callback:  callback,
	}
	m.pending = append(m.pending, h)
	return h
}

func (h *manualHandle) Cancel() bool {
	m := h.scheduler
	m.locker.Lock()
	defer m.locker.Unlock()
	for idx, item := range m.pending {
		if item == h {
			m.pending = append(m.pending[:idx], m.pending[idx+1:]...)
			return true
		}
	}
	return false
}

// Pending returns the amount of scheduled and not yet fired callbacks.
func (m *Manual) Pending() int {
	m.locker.Lock()
	defer m.locker.Unlock()
	return len(m.pending)
}

// Advance moves the clock forward by d, firing every callback that
// becomes due, in the order of their deadlines.
func (m *Manual) Advance(d time.Duration) {
	m.locker.Lock()
	target := m.now.Add(d)
	m.locker.Unlock()

	for {
		h := m.popDue(target)
		if h == nil {
			break
		}
		h.callback()
	}

	m.locker.Lock()
	defer m.locker.Unlock()
	if m.now.Before(target) {
		m.now = target
	}
}

func (m *Manual) popDue(target time.Time) *manualHandle {
	m.locker.Lock()
	defer m.locker.Unlock()
	if len(m.pending) == 0 {
		return nil
	}
	sort.SliceStable(m.pending, func(i, j int) bool {
		if m.pending[i].at.Equal(m.pending[j].at) {
			return m.pending[i].id < m.pending[j].id
		}
		return m.pending[i].at.Before(m.pending[j].at)
	})
	h := m.pending[0]
	if h.at.After(target) {
		return nil
	}
	m.pending = m.pending[1:]
	if h.at.After(m.now) {
		m.now = h.at
	}
	return h
}
