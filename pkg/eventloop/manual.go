package eventloop

import (
	"context"
	"sync"
)

// Manual is a Loop that executes anything only when Drain is called. It
// makes interleavings deterministic in tests.
type Manual struct {
	locker  sync.Mutex
	pending []func()
}

var _ Loop = (*Manual)(nil)

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Post(fn func()) {
	m.locker.Lock()
	defer m.locker.Unlock()
	m.pending = append(m.pending, fn)
}

// Do posts fn and drains the loop on the calling goroutine.
func (m *Manual) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Post(fn)
	m.Drain()
	return nil
}

// Drain executes the pending functions, including the ones posted while
// draining, until nothing is left. Returns the amount of executed functions.
func (m *Manual) Drain() int {
	count := 0
	for {
		m.locker.Lock()
		if len(m.pending) == 0 {
			m.locker.Unlock()
			return count
		}
		fn := m.pending[0]
		m.pending = m.pending[1:]
		m.locker.Unlock()

		fn()
		count++
	}
}

func (m *Manual) Pending() int {
	m.locker.Lock()
	defer m.locker.Unlock()
	return len(m.pending)
}
