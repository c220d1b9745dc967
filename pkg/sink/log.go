package sink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/mediacapture/pkg/controller"
)

// Messages prints a human-readable system message per event.
type Messages struct {
	Output io.Writer

	locker sync.Mutex
}

var _ controller.EventSink = (*Messages)(nil)

func NewMessages(output io.Writer) *Messages {
	return &Messages{
		Output: output,
	}
}

func (s *Messages) OnEvent(ctx context.Context, event controller.Event) {
	msg := Message(event)
	if msg == "" {
		return
	}
	logger.Infof(ctx, "%s", msg)
	if s.Output == nil {
		return
	}
	s.locker.Lock()
	defer s.locker.Unlock()
	fmt.Fprintf(s.Output, "[%s] %s\n", event.Timestamp.Format("15:04:05"), msg)
}

// Message returns the system message for the event.
func Message(event controller.Event) string {
	switch event.Kind {
	case controller.EventKindCameraEnabled:
		return "Camera turned on"
	case controller.EventKindCameraDisabled:
		return "Camera turned off"
	case controller.EventKindCameraDenied:
		return fmt.Sprintf("Camera access denied. Please grant permissions. (%v)", event.Err)
	case controller.EventKindMicEnabled:
		return "Listening..."
	case controller.EventKindMicDisabled:
		return "Listening stopped"
	case controller.EventKindMicDenied:
		return fmt.Sprintf("Microphone access denied. Please grant permissions. (%v)", event.Err)
	case controller.EventKindSegmentReady:
		return fmt.Sprintf("Voice input captured: %s", event.Segment.CapturedDuration())
	case controller.EventKindSessionEnded:
		return "Shutting down..."
	case controller.EventKindRecorderFailed:
		return fmt.Sprintf("Recording failed: %v", event.Err)
	default:
		return ""
	}
}
