package eventloop

import (
	"context"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// Queue is a Loop executing the posted functions in FIFO order on the
// goroutine that called Run.
type Queue struct {
	locker   sync.Mutex
	pending  []func()
	wakeupCh chan struct{}
	closedCh chan struct{}
	closed   bool
}

var _ Loop = (*Queue)(nil)

func NewQueue() *Queue {
	return &Queue{
		wakeupCh: make(chan struct{}, 1),
		closedCh: make(chan struct{}),
	}
}

func (q *Queue) Post(fn func()) {
	q.locker.Lock()
	defer q.locker.Unlock()
	if q.closed {
		return
	}
	q.pending = append(q.pending, fn)
	select {
	case q.wakeupCh <- struct{}{}:
	default:
	}
}

func (q *Queue) Do(ctx context.Context, fn func()) error {
	doneCh := make(chan struct{})
	q.Post(func() {
		defer close(doneCh)
		fn()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closedCh:
		select {
		case <-doneCh:
			return nil
		default:
			return ErrClosed
		}
	case <-doneCh:
		return nil
	}
}

// Run executes the posted functions until ctx is cancelled or Close is called.
func (q *Queue) Run(ctx context.Context) error {
	logger.Debugf(ctx, "Run")
	defer logger.Debugf(ctx, "/Run")
	defer q.Close()

	for {
		q.locker.Lock()
		batch := q.pending
		q.pending = nil
		closed := q.closed
		q.locker.Unlock()

		if closed {
			return ErrClosed
		}

		for _, fn := range batch {
			fn()
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.closedCh:
			return ErrClosed
		case <-q.wakeupCh:
		}
	}
}

// Close stops the loop; the functions not executed yet are dropped.
func (q *Queue) Close() {
	q.locker.Lock()
	defer q.locker.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.pending = nil
	close(q.closedCh)
}
