package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/mediacapture/pkg/segmentrecorder"
)

type EventKind uint

const (
	EventKindUndefined = EventKind(iota)
	EventKindCameraEnabled
	EventKindCameraDisabled
	EventKindCameraDenied
	EventKindMicEnabled
	EventKindMicDisabled
	EventKindMicDenied
	EventKindSegmentReady
	EventKindSessionEnded
	EventKindRecorderFailed
)

func (k EventKind) String() string {
	switch k {
	case EventKindUndefined:
		return "<undefined>"
	case EventKindCameraEnabled:
		return "cameraEnabled"
	case EventKindCameraDisabled:
		return "cameraDisabled"
	case EventKindCameraDenied:
		return "cameraDenied"
	case EventKindMicEnabled:
		return "micEnabled"
	case EventKindMicDisabled:
		return "micDisabled"
	case EventKindMicDenied:
		return "micDenied"
	case EventKindSegmentReady:
		return "segmentReady"
	case EventKindSessionEnded:
		return "sessionEnded"
	case EventKindRecorderFailed:
		return "recorderFailed"
	default:
		return fmt.Sprintf("<unexpected_%d>", uint(k))
	}
}

type Event struct {
	Kind      EventKind
	Timestamp time.Time

	// Segment is set for EventKindSegmentReady.
	Segment *segmentrecorder.Segment

	// Err is set for the denied and failed kinds.
	Err error
}

func (e Event) String() string {
	switch {
	case e.Segment != nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Segment)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

// EventSink consumes the events of a Controller. It is called on the
// controller's loop and must not block it.
type EventSink interface {
	OnEvent(ctx context.Context, event Event)
}

type EventSinkFunc func(ctx context.Context, event Event)

func (fn EventSinkFunc) OnEvent(ctx context.Context, event Event) {
	fn(ctx, event)
}

type EventSinks []EventSink

var _ EventSink = (EventSinks)(nil)

func (s EventSinks) OnEvent(ctx context.Context, event Event) {
	for _, sink := range s {
		sink.OnEvent(ctx, event)
	}
}

// Shutdowner is asked to terminate the host once the session is ended.
type Shutdowner interface {
	RequestShutdown(ctx context.Context) error
}

type ShutdownerFunc func(ctx context.Context) error

func (fn ShutdownerFunc) RequestShutdown(ctx context.Context) error {
	return fn(ctx)
}
