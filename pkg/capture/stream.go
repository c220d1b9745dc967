package capture

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/google/uuid"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
)

// Stream is a handle of an acquired device stream. It is owned by whoever
// requested it until Release is called; Release is effective exactly once.
type Stream struct {
	id            uuid.UUID
	kind          types.Kind
	captureLocker sync.Mutex
	capture       types.CaptureStream

	format  types.AudioFormat
	pcm     *PCMBuffer
	counter *datacounter.WriterCounter

	releaseOnce sync.Once
	released    atomic.Bool
}

func NewVideoStream(capture types.CaptureStream) *Stream {
	return &Stream{
		id:      uuid.New(),
		kind:    types.KindVideo,
		capture: capture,
	}
}

// NewAudioStream creates an audio stream handle buffering up to bufferSize
// bytes of PCM; the capturing backend is attached with SetCaptureStream.
func NewAudioStream(format types.AudioFormat, bufferSize int) *Stream {
	pcm := NewPCMBuffer(bufferSize)
	return &Stream{
		id:      uuid.New(),
		kind:    types.KindAudio,
		format:  format,
		pcm:     pcm,
		counter: datacounter.NewWriterCounter(pcm),
	}
}

func (s *Stream) SetCaptureStream(capture types.CaptureStream) {
	s.captureLocker.Lock()
	defer s.captureLocker.Unlock()
	s.capture = capture
}

func (s *Stream) ID() uuid.UUID {
	return s.id
}

func (s *Stream) Kind() types.Kind {
	return s.kind
}

func (s *Stream) String() string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s:%s", s.kind, s.id)
}

func (s *Stream) Format() types.AudioFormat {
	return s.format
}

// PCMWriter is where the backend writes captured PCM to.
func (s *Stream) PCMWriter() io.Writer {
	if s.counter == nil {
		return io.Discard
	}
	return s.counter
}

// TakePCM removes and returns all the PCM captured since the previous call.
func (s *Stream) TakePCM() []byte {
	if s.pcm == nil {
		return nil
	}
	return s.pcm.Take()
}

func (s *Stream) DiscardPCM() int {
	if s.pcm == nil {
		return 0
	}
	return s.pcm.Discard()
}

func (s *Stream) BytesCaptured() uint64 {
	if s.counter == nil {
		return 0
	}
	return s.counter.Count()
}

func (s *Stream) Released() bool {
	if s == nil {
		return true
	}
	return s.released.Load()
}

// Release stops all the underlying tracks. Releasing a nil or an already
// released stream is a no-op.
func (s *Stream) Release(ctx context.Context) (_err error) {
	if s == nil {
		return nil
	}
	s.releaseOnce.Do(func() {
		logger.Debugf(ctx, "releasing stream %s", s)
		defer func() { logger.Debugf(ctx, "/releasing stream %s: %v", s, _err) }()
		s.released.Store(true)

		s.captureLocker.Lock()
		capture := s.capture
		s.capture = nil
		s.captureLocker.Unlock()
		if capture == nil {
			return
		}
		_err = closeCaptureStream(capture)
	})
	return
}

func closeCaptureStream(capture types.CaptureStream) (_err error) {
	defer func() {
		r := recover()
		if r != nil {
			_err = fmt.Errorf("got a panic: %v", r)
		}
	}()
	if err := capture.Close(); err != nil {
		return fmt.Errorf("unable to close the capture stream: %w", err)
	}
	return nil
}
