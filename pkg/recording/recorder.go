// Package recording provides the recording primitive: something that can
// be started and stopped over an acquired audio stream, reporting the
// captured data in chunks and signalling when it is fully stopped.
package recording

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidState = errors.New("invalid recorder state")

type State uint

const (
	StateInactive = State(iota)
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("<unexpected_%d>", uint(s))
	}
}

type Chunk struct {
	Data      []byte
	Timestamp time.Time
}

// Handlers may be called from any goroutine. OnStop is called exactly once
// per Start, after the last OnDataAvailable of that recording.
type Handlers struct {
	OnDataAvailable func(Chunk)
	OnStop          func()
}

type Recorder interface {
	Start(ctx context.Context) error

	// Stop requests the recording to stop; completion is signalled by OnStop.
	Stop(ctx context.Context) error

	State() State
}

// Source is the audio a Recorder reads.
type Source interface {
	TakePCM() []byte
	DiscardPCM() int
}

type NewRecorderFunc func(ctx context.Context, source Source, handlers Handlers) (Recorder, error)
