package timer

import (
	"time"
)

// System schedules callbacks using the wall clock; callbacks are called
// from their own goroutines.
type System struct{}

var _ Scheduler = System{}

func (System) Now() time.Time {
	return time.Now()
}

func (System) Schedule(delay time.Duration, callback func()) Handle {
	return systemHandle{Timer: time.AfterFunc(delay, callback)}
}

type systemHandle struct {
	*time.Timer
}

func (h systemHandle) Cancel() bool {
	return h.Timer.Stop()
}
