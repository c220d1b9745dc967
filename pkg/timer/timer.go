// Package timer schedules deferred callbacks.
package timer

import (
	"time"
)

type Handle interface {
	// Cancel prevents the callback from being called. Returns false if
	// it was already called or cancelled.
	Cancel() bool
}

type Scheduler interface {
	Now() time.Time
	Schedule(delay time.Duration, callback func()) Handle
}

// Cancel cancels h if it is not nil.
func Cancel(h Handle) bool {
	if h == nil {
		return false
	}
	return h.Cancel()
}
