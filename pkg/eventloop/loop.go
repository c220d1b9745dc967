// Package eventloop provides the single logical thread all the capture
// session state transitions run on.
package eventloop

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("the event loop is closed")

type Loop interface {
	// Post enqueues fn to be executed on the loop. It never blocks and
	// may be called from any goroutine, including the loop itself.
	Post(fn func())

	// Do executes fn on the loop and waits for it to finish.
	// It must not be called from the loop itself.
	Do(ctx context.Context, fn func()) error
}
