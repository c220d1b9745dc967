package capture

import (
	"context"
	"io"

	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
)

type AudioCapturerUnavailable struct {
	Err error
}

var _ types.AudioCapturer = AudioCapturerUnavailable{}

func (AudioCapturerUnavailable) Close() error {
	return nil
}

func (c AudioCapturerUnavailable) Ping(context.Context) error {
	return c.error(types.KindAudio)
}

func (c AudioCapturerUnavailable) CapturePCM(
	context.Context,
	types.AudioConstraints,
	io.Writer,
) (types.CaptureStream, error) {
	return nil, c.error(types.KindAudio)
}

func (c AudioCapturerUnavailable) error(kind types.Kind) error {
	return &types.DeviceError{
		Kind:   kind,
		Reason: types.DeviceErrorReasonUnavailable,
		Err:    c.Err,
	}
}

type VideoCapturerUnavailable struct {
	Err error
}

var _ types.VideoCapturer = VideoCapturerUnavailable{}

func (VideoCapturerUnavailable) Close() error {
	return nil
}

func (c VideoCapturerUnavailable) Ping(context.Context) error {
	return AudioCapturerUnavailable(c).error(types.KindVideo)
}

func (c VideoCapturerUnavailable) CaptureVideo(
	context.Context,
	types.VideoConstraints,
) (types.CaptureStream, error) {
	return nil, AudioCapturerUnavailable(c).error(types.KindVideo)
}
