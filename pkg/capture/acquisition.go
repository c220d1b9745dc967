package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
)

const (
	DefaultPCMBufferDuration = 2 * time.Second
)

// Permissions says which devices may be acquired at all.
type Permissions struct {
	Camera     bool
	Microphone bool
}

func PermitAll() Permissions {
	return Permissions{
		Camera:     true,
		Microphone: true,
	}
}

type DeviceAcquisition struct {
	AudioCapturer types.AudioCapturer
	VideoCapturer types.VideoCapturer
	Permissions   Permissions
}

func NewDeviceAcquisition(
	audioCapturer types.AudioCapturer,
	videoCapturer types.VideoCapturer,
	permissions Permissions,
) *DeviceAcquisition {
	return &DeviceAcquisition{
		AudioCapturer: audioCapturer,
		VideoCapturer: videoCapturer,
		Permissions:   permissions,
	}
}

func (d *DeviceAcquisition) AcquireAudio(
	ctx context.Context,
	constraints types.AudioConstraints,
) (_ret *Stream, _err error) {
	logger.Debugf(ctx, "AcquireAudio(%#+v)", constraints)
	defer func() { logger.Debugf(ctx, "/AcquireAudio(%#+v): %s %v", constraints, _ret, _err) }()

	if !d.Permissions.Microphone {
		return nil, &types.DeviceError{
			Kind:   types.KindAudio,
			Reason: types.DeviceErrorReasonDenied,
			Err:    fmt.Errorf("microphone access is not permitted"),
		}
	}
	if d.AudioCapturer == nil {
		return nil, &types.DeviceError{
			Kind:   types.KindAudio,
			Reason: types.DeviceErrorReasonUnavailable,
			Err:    fmt.Errorf("no audio capturer is configured"),
		}
	}

	format := constraints.Format()
	if format.BytesPerFrame() == 0 || format.SampleRate == 0 {
		return nil, &types.DeviceError{
			Kind:   types.KindAudio,
			Reason: types.DeviceErrorReasonUnavailable,
			Err:    fmt.Errorf("invalid audio format requested: %#+v", format),
		}
	}

	bufferDuration := constraints.BufferDuration
	if bufferDuration <= 0 {
		bufferDuration = DefaultPCMBufferDuration
	}
	stream := NewAudioStream(format, int(format.BytesForDuration(bufferDuration)))

	captureStream, err := d.AudioCapturer.CapturePCM(ctx, constraints, stream.PCMWriter())
	if err != nil {
		return nil, asDeviceError(types.KindAudio, fmt.Errorf("unable to start capturing audio with %T: %w", d.AudioCapturer, err))
	}
	stream.SetCaptureStream(captureStream)
	return stream, nil
}

func (d *DeviceAcquisition) AcquireVideo(
	ctx context.Context,
	constraints types.VideoConstraints,
) (_ret *Stream, _err error) {
	logger.Debugf(ctx, "AcquireVideo(%#+v)", constraints)
	defer func() { logger.Debugf(ctx, "/AcquireVideo(%#+v): %s %v", constraints, _ret, _err) }()

	if !d.Permissions.Camera {
		return nil, &types.DeviceError{
			Kind:   types.KindVideo,
			Reason: types.DeviceErrorReasonDenied,
			Err:    fmt.Errorf("camera access is not permitted"),
		}
	}
	if d.VideoCapturer == nil {
		return nil, &types.DeviceError{
			Kind:   types.KindVideo,
			Reason: types.DeviceErrorReasonUnavailable,
			Err:    fmt.Errorf("no video capturer is configured"),
		}
	}

	captureStream, err := d.VideoCapturer.CaptureVideo(ctx, constraints)
	if err != nil {
		return nil, asDeviceError(types.KindVideo, fmt.Errorf("unable to start capturing video with %T: %w", d.VideoCapturer, err))
	}
	return NewVideoStream(captureStream), nil
}

// Release is idempotent: a nil or already released stream is ignored.
func (d *DeviceAcquisition) Release(
	ctx context.Context,
	stream *Stream,
) error {
	return stream.Release(ctx)
}

func (d *DeviceAcquisition) Close() error {
	var mErr *multierror.Error
	if d.AudioCapturer != nil {
		if err := d.AudioCapturer.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close the audio capturer: %w", err))
		}
	}
	if d.VideoCapturer != nil {
		if err := d.VideoCapturer.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close the video capturer: %w", err))
		}
	}
	return mErr.ErrorOrNil()
}

func asDeviceError(kind types.Kind, err error) error {
	var devErr *types.DeviceError
	if errors.As(err, &devErr) {
		if devErr.Kind == types.KindUndefined {
			devErr.Kind = kind
		}
		return devErr
	}
	return &types.DeviceError{
		Kind:   kind,
		Reason: types.DeviceErrorReasonUnavailable,
		Err:    err,
	}
}
