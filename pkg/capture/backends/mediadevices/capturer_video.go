// Package mediadevices captures cameras using pion/mediadevices.
//
// Camera drivers register themselves on import; an application has to
// import e.g. "github.com/pion/mediadevices/pkg/driver/camera" to make any
// camera visible.
package mediadevices

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
)

type VideoCapturer struct{}

var _ types.VideoCapturer = (*VideoCapturer)(nil)

func NewVideoCapturer() *VideoCapturer {
	return &VideoCapturer{}
}

func (*VideoCapturer) Close() error {
	return nil
}

func (*VideoCapturer) Ping(ctx context.Context) error {
	var cameras int
	for _, device := range mediadevices.EnumerateDevices() {
		if device.Kind != mediadevices.VideoInput {
			continue
		}
		logger.Tracef(ctx, "camera: %#+v", device)
		cameras++
	}
	if cameras == 0 {
		return fmt.Errorf("no cameras found")
	}
	return nil
}

func (*VideoCapturer) CaptureVideo(
	ctx context.Context,
	constraints types.VideoConstraints,
) (_ types.CaptureStream, _err error) {
	logger.Debugf(ctx, "CaptureVideo(%#+v)", constraints)
	defer func() { logger.Debugf(ctx, "/CaptureVideo(%#+v): %v", constraints, _err) }()

	mediaStream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			if constraints.Width > 0 {
				c.Width = prop.Int(constraints.Width)
			}
			if constraints.Height > 0 {
				c.Height = prop.Int(constraints.Height)
			}
			if constraints.FrameRate > 0 {
				c.FrameRate = prop.Float(constraints.FrameRate)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to get the camera stream: %w", err)
	}
	return &CaptureStream{MediaStream: mediaStream}, nil
}

type CaptureStream struct {
	MediaStream mediadevices.MediaStream
	CloseOnce   sync.Once
	CloseErr    error
}

var _ types.CaptureStream = (*CaptureStream)(nil)

func (s *CaptureStream) Close() error {
	s.CloseOnce.Do(func() {
		defer func() {
			r := recover()
			if r != nil {
				s.CloseErr = fmt.Errorf("got a panic: %v", r)
			}
		}()
		for _, track := range s.MediaStream.GetTracks() {
			if err := track.Close(); err != nil && s.CloseErr == nil {
				s.CloseErr = fmt.Errorf("unable to close track %s: %w", track.ID(), err)
			}
		}
	})
	return s.CloseErr
}
