package segmentrecorder

import (
	"fmt"
)

type State uint

const (
	StateIdle = State(iota)
	StateRecording
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("<unexpected_%d>", uint(s))
	}
}
