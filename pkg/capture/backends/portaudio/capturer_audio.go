package portaudio

import (
	"context"
	"fmt"
	"io"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
)

type AudioCapturer struct{}

var _ types.AudioCapturer = (*AudioCapturer)(nil)

func NewAudioCapturer() (*AudioCapturer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	return &AudioCapturer{}, nil
}

func (*AudioCapturer) Close() error {
	return portaudio.Terminate()
}

func (*AudioCapturer) Ping(
	ctx context.Context,
) error {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return err
	}
	logger.Debugf(ctx, "device info: %#+v", info)

	if devices, err := portaudio.Devices(); err == nil {
		for idx, device := range devices {
			logger.Tracef(ctx, "devices[%d]: %#+v", idx, device)
		}
	}
	return nil
}

func (*AudioCapturer) CapturePCM(
	ctx context.Context,
	constraints types.AudioConstraints,
	writer io.Writer,
) (types.CaptureStream, error) {
	if constraints.EchoCancellation || constraints.NoiseSuppression {
		logger.Debugf(ctx, "PortAudio provides neither echo cancellation nor noise suppression; capturing the raw input")
	}

	var (
		s   *CapturePCMStream
		err error
	)
	switch constraints.PCMFormat {
	case types.PCMFormatU8:
		s, err = newCapturePCMStream[uint8](ctx, constraints.SampleRate, constraints.Channels)
	case types.PCMFormatS16LE:
		s, err = newCapturePCMStream[int16](ctx, constraints.SampleRate, constraints.Channels)
	case types.PCMFormatS32LE:
		s, err = newCapturePCMStream[int32](ctx, constraints.SampleRate, constraints.Channels)
	case types.PCMFormatFloat32LE:
		s, err = newCapturePCMStream[float32](ctx, constraints.SampleRate, constraints.Channels)
	default:
		return nil, fmt.Errorf("do not know how to start a stream for PCM format %s", constraints.PCMFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open the default input stream: %w", err)
	}

	if err := s.init(ctx, writer); err != nil {
		s.Close()
		return nil, fmt.Errorf("unable to post-initialize the stream: %w", err)
	}
	return s, nil
}
