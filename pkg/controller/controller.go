// Package controller implements the capture session: toggling the camera
// and the microphone, running the segmented recording while the
// microphone is on, and tearing everything down at the end.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/mediacapture/pkg/capture"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
	"github.com/xaionaro-go/mediacapture/pkg/eventloop"
	"github.com/xaionaro-go/mediacapture/pkg/recording"
	"github.com/xaionaro-go/mediacapture/pkg/segmentrecorder"
	"github.com/xaionaro-go/mediacapture/pkg/timer"
	"github.com/xaionaro-go/observability"
)

const (
	DefaultSegmentDuration = 5 * time.Second
)

// DeviceAcquirer is implemented by capture.DeviceAcquisition.
type DeviceAcquirer interface {
	AcquireAudio(ctx context.Context, constraints types.AudioConstraints) (*capture.Stream, error)
	AcquireVideo(ctx context.Context, constraints types.VideoConstraints) (*capture.Stream, error)
	Release(ctx context.Context, stream *capture.Stream) error
}

var _ DeviceAcquirer = (*capture.DeviceAcquisition)(nil)

type Config struct {
	AudioConstraints types.AudioConstraints
	VideoConstraints types.VideoConstraints
	SegmentDuration  time.Duration
	SegmentGap       time.Duration
}

// Controller owns a CaptureSession. All of its state is accessed only on
// Loop; the exported methods are safe to call from any goroutine.
type Controller struct {
	Config     Config
	Loop       eventloop.Loop
	Scheduler  timer.Scheduler
	Acquirer   DeviceAcquirer
	EventSink  EventSink
	Shutdowner Shutdowner

	session         CaptureSession
	segmentRecorder *segmentrecorder.SegmentRecorder
	camera          resource
	microphone      resource
}

// resource serializes the toggles of one device: while busy, the
// following toggles wait in pending, in arrival order.
type resource struct {
	busy    bool
	pending []func()
}

func New(
	cfg Config,
	loop eventloop.Loop,
	scheduler timer.Scheduler,
	acquirer DeviceAcquirer,
	newRecorder recording.NewRecorderFunc,
	eventSink EventSink,
	shutdowner Shutdowner,
) *Controller {
	if cfg.SegmentDuration <= 0 {
		cfg.SegmentDuration = DefaultSegmentDuration
	}
	c := &Controller{
		Config:     cfg,
		Loop:       loop,
		Scheduler:  scheduler,
		Acquirer:   acquirer,
		EventSink:  eventSink,
		Shutdowner: shutdowner,
	}
	c.segmentRecorder = segmentrecorder.New(
		loop,
		scheduler,
		newRecorder,
		func() uint64 { return c.session.SessionEpoch },
		segmentrecorder.Handlers{
			OnSegment: c.onSegment,
			OnError:   c.onRecorderError,
		},
		cfg.SegmentGap,
	)
	return c
}

// Session returns a copy of the current session state.
// It must not be called from the loop itself.
func (c *Controller) Session(ctx context.Context) (CaptureSession, error) {
	var session CaptureSession
	err := c.Loop.Do(ctx, func() {
		session = c.session
		session.RecorderState = c.segmentRecorder.State()
	})
	if err != nil {
		return CaptureSession{}, fmt.Errorf("unable to read the session state: %w", err)
	}
	return session, nil
}

func (c *Controller) ToggleCamera(ctx context.Context) {
	c.Loop.Post(func() {
		c.request(ctx, &c.camera, func() { c.toggleCamera(ctx) })
	})
}

func (c *Controller) ToggleMicrophone(ctx context.Context) {
	c.Loop.Post(func() {
		c.request(ctx, &c.microphone, func() { c.toggleMicrophone(ctx) })
	})
}

func (c *Controller) EndSession(ctx context.Context) {
	c.Loop.Post(func() {
		c.endSession(ctx)
	})
}

func (c *Controller) request(ctx context.Context, res *resource, action func()) {
	if c.session.Terminated {
		logger.Debugf(ctx, "the session is terminated, ignoring the toggle")
		return
	}
	if res.busy {
		res.pending = append(res.pending, action)
		logger.Debugf(ctx, "the device is busy, the toggle is queued (queue length: %d)", len(res.pending))
		return
	}
	res.busy = true
	action()
}

func (c *Controller) settle(res *resource) {
	res.busy = false
	if c.session.Terminated {
		res.pending = nil
		return
	}
	if len(res.pending) == 0 {
		return
	}
	next := res.pending[0]
	res.pending = res.pending[1:]
	res.busy = true
	next()
}

func (c *Controller) emit(ctx context.Context, kind EventKind, opts ...func(*Event)) {
	event := Event{
		Kind:      kind,
		Timestamp: c.Scheduler.Now(),
	}
	for _, opt := range opts {
		opt(&event)
	}
	logger.Debugf(ctx, "event: %s", event)
	if c.EventSink == nil {
		return
	}
	c.EventSink.OnEvent(ctx, event)
}

func withErr(err error) func(*Event) {
	return func(e *Event) { e.Err = err }
}

func withSegment(segment *segmentrecorder.Segment) func(*Event) {
	return func(e *Event) { e.Segment = segment }
}

// acquire runs fn outside of the loop and posts the result back, unless
// the session epoch changed meanwhile: then the acquired stream is
// released and the result is dropped.
func (c *Controller) acquire(
	ctx context.Context,
	fn func(ctx context.Context) (*capture.Stream, error),
	onResult func(stream *capture.Stream, err error),
) {
	epoch := c.session.SessionEpoch
	observability.Go(ctx, func(ctx context.Context) {
		stream, err := fn(ctx)
		c.Loop.Post(func() {
			if c.session.Terminated || epoch != c.session.SessionEpoch {
				logger.Tracef(ctx, "stale acquisition (epoch %d != %d), releasing %s", epoch, c.session.SessionEpoch, stream)
				c.release(ctx, stream)
				return
			}
			onResult(stream, err)
		})
	})
}

func (c *Controller) release(ctx context.Context, stream *capture.Stream) error {
	if stream == nil {
		return nil
	}
	if err := c.Acquirer.Release(ctx, stream); err != nil {
		logger.Errorf(ctx, "unable to release %s: %v", stream, err)
		return fmt.Errorf("unable to release %s: %w", stream, err)
	}
	return nil
}

func (c *Controller) toggleCamera(ctx context.Context) {
	logger.Debugf(ctx, "toggleCamera (enabled: %t)", c.session.CameraEnabled)

	if c.session.CameraEnabled {
		stream := c.session.CameraStream
		c.session.CameraStream = nil
		c.session.CameraEnabled = false
		c.release(ctx, stream)
		c.emit(ctx, EventKindCameraDisabled)
		c.settle(&c.camera)
		return
	}

	if c.session.CameraStream != nil {
		c.session.CameraEnabled = true
		c.emit(ctx, EventKindCameraEnabled)
		c.settle(&c.camera)
		return
	}

	c.acquire(ctx, func(ctx context.Context) (*capture.Stream, error) {
		return c.Acquirer.AcquireVideo(ctx, c.Config.VideoConstraints)
	}, func(stream *capture.Stream, err error) {
		defer c.settle(&c.camera)
		if err != nil {
			logger.Warnf(ctx, "unable to acquire the camera: %v", err)
			c.emit(ctx, EventKindCameraDenied, withErr(err))
			return
		}
		c.session.CameraStream = stream
		c.session.CameraEnabled = true
		c.emit(ctx, EventKindCameraEnabled)
	})
}

func (c *Controller) toggleMicrophone(ctx context.Context) {
	logger.Debugf(ctx, "toggleMicrophone (enabled: %t)", c.session.MicEnabled)

	if c.session.MicEnabled {
		c.disableMicrophone(ctx)
		return
	}

	if c.session.MicrophoneStream != nil {
		c.startRecording(ctx)
		return
	}

	c.acquire(ctx, func(ctx context.Context) (*capture.Stream, error) {
		return c.Acquirer.AcquireAudio(ctx, c.Config.AudioConstraints)
	}, func(stream *capture.Stream, err error) {
		if err != nil {
			logger.Warnf(ctx, "unable to acquire the microphone: %v", err)
			c.emit(ctx, EventKindMicDenied, withErr(err))
			c.settle(&c.microphone)
			return
		}
		c.session.MicrophoneStream = stream
		c.startRecording(ctx)
	})
}

func (c *Controller) startRecording(ctx context.Context) {
	defer c.settle(&c.microphone)

	err := c.segmentRecorder.Start(
		ctx,
		c.session.MicrophoneStream,
		c.Config.SegmentDuration,
		c.session.SessionEpoch,
	)
	if err != nil {
		err = fmt.Errorf("unable to start recording: %w", err)
		logger.Errorf(ctx, "%v", err)
		stream := c.session.MicrophoneStream
		c.session.MicrophoneStream = nil
		c.release(ctx, stream)
		c.emit(ctx, EventKindRecorderFailed, withErr(err))
		return
	}
	c.session.MicEnabled = true
	c.emit(ctx, EventKindMicEnabled)
}

func (c *Controller) disableMicrophone(ctx context.Context) {
	c.session.MicEnabled = false
	c.segmentRecorder.Stop(ctx, func() {
		stream := c.session.MicrophoneStream
		c.session.MicrophoneStream = nil
		if stream != nil {
			logger.Debugf(ctx, "%s captured %d bytes in total", stream, stream.BytesCaptured())
		}
		c.release(ctx, stream)
		if !c.session.Terminated {
			c.emit(ctx, EventKindMicDisabled)
		}
		c.settle(&c.microphone)
	})
}

func (c *Controller) onSegment(ctx context.Context, segment *segmentrecorder.Segment) {
	if c.session.Terminated {
		logger.Tracef(ctx, "the session is terminated, dropping %s", segment)
		return
	}
	c.emit(ctx, EventKindSegmentReady, withSegment(segment))
}

func (c *Controller) onRecorderError(ctx context.Context, err error) {
	if c.session.Terminated {
		return
	}
	c.emit(ctx, EventKindRecorderFailed, withErr(err))
	run := c.segmentRecorder.Run()
	c.request(ctx, &c.microphone, func() {
		if !c.session.MicEnabled || c.segmentRecorder.Run() != run {
			logger.Debugf(ctx, "the microphone was toggled since the recorder failure")
			c.settle(&c.microphone)
			return
		}
		c.disableMicrophone(ctx)
	})
}

func (c *Controller) endSession(ctx context.Context) {
	logger.Debugf(ctx, "endSession")
	defer logger.Debugf(ctx, "/endSession")

	if c.session.Terminated {
		logger.Debugf(ctx, "the session is already terminated")
		return
	}

	c.session.SessionEpoch++
	c.session.Terminated = true
	c.camera.pending = nil
	c.microphone.pending = nil
	c.session.CameraEnabled = false
	c.session.MicEnabled = false

	c.segmentRecorder.Stop(ctx, nil)

	var mErr *multierror.Error
	for _, stream := range []*capture.Stream{
		c.session.CameraStream,
		c.session.MicrophoneStream,
	} {
		if err := c.release(ctx, stream); err != nil {
			mErr = multierror.Append(mErr, err)
		}
	}
	c.session.CameraStream = nil
	c.session.MicrophoneStream = nil
	if err := mErr.ErrorOrNil(); err != nil {
		logger.Errorf(ctx, "unable to release all the streams: %v", err)
	}

	c.emit(ctx, EventKindSessionEnded)

	if c.Shutdowner == nil {
		return
	}
	if err := c.Shutdowner.RequestShutdown(ctx); err != nil {
		logger.Errorf(ctx, "unable to request a shutdown: %v", err)
	}
}
