package portaudio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
	"unsafe"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
	"github.com/xaionaro-go/observability"
)

const (
	CaptureBufferSize = time.Millisecond * 100
)

type CapturePCMStream struct {
	PortAudioStream *portaudio.Stream
	InputBuffer     []byte
	OutputBuffer    []byte
	Writer          io.Writer
	CancelFunc      context.CancelFunc
	WaitGroup       sync.WaitGroup
	CloseOnce       sync.Once
	CloseErr        error
}

var _ types.CaptureStream = (*CapturePCMStream)(nil)

func newCapturePCMStream[T any](
	ctx context.Context,
	sampleRate types.SampleRate,
	channels types.Channel,
) (*CapturePCMStream, error) {
	framesPerBuffer := int(CaptureBufferSize.Seconds() * float64(sampleRate))

	var sample T
	buf := make([]T, framesPerBuffer*int(channels))
	logger.Debugf(ctx, "newCapturePCMStream: %T, %d, %d %s(%d)", sample, sampleRate, channels, CaptureBufferSize, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(int(channels), 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, err
	}

	ptr := unsafe.SliceData(buf)
	bytesBuf := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), len(buf)*int(unsafe.Sizeof(sample)))

	return &CapturePCMStream{
		PortAudioStream: stream,
		InputBuffer:     bytesBuf,
		OutputBuffer:    make([]byte, len(bytesBuf)),
	}, nil
}

func (s *CapturePCMStream) init(
	ctx context.Context,
	writer io.Writer,
) error {
	s.Writer = writer
	ctx, s.CancelFunc = context.WithCancel(ctx)

	err := s.PortAudioStream.Start()
	if err != nil {
		return fmt.Errorf("unable to start the stream: %w", err)
	}

	s.WaitGroup.Add(1)
	observability.Go(ctx, func(ctx context.Context) {
		defer s.WaitGroup.Done()
		defer s.CancelFunc()
		err := s.captureLoop(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Errorf(ctx, "the capture loop failed: %v", err)
		}
	})
	return nil
}

func (s *CapturePCMStream) captureLoop(
	ctx context.Context,
) (_ret error) {
	logger.Debugf(ctx, "captureLoop")
	defer func() { logger.Debugf(ctx, "/captureLoop: %v", _ret) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		logger.Tracef(ctx, "Read")
		err := s.PortAudioStream.Read()
		logger.Tracef(ctx, "/Read: %v", err)
		if err != nil {
			if err == portaudio.InputOverflowed {
				logger.Debugf(ctx, "input overflowed, some audio was lost")
			} else {
				return fmt.Errorf("unable to read: %w", err)
			}
		}
		copy(s.OutputBuffer, s.InputBuffer)

		n, err := s.Writer.Write(s.OutputBuffer)
		if err != nil {
			return fmt.Errorf("unable to write: %w", err)
		}
		if n != len(s.OutputBuffer) {
			return fmt.Errorf("invalid write length: %d != %d", n, len(s.OutputBuffer))
		}
	}
}

func (s *CapturePCMStream) Close() error {
	s.CloseOnce.Do(func() {
		if s.CancelFunc != nil {
			s.CancelFunc()
		}
		if err := s.PortAudioStream.Abort(); err != nil {
			s.CloseErr = fmt.Errorf("unable to abort the stream: %w", err)
		}
		s.WaitGroup.Wait()
		if err := s.PortAudioStream.Close(); err != nil && s.CloseErr == nil {
			s.CloseErr = fmt.Errorf("unable to close the stream: %w", err)
		}
	})
	return s.CloseErr
}
