package controller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/mediacapture/pkg/capture"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
	"github.com/xaionaro-go/mediacapture/pkg/eventloop"
	"github.com/xaionaro-go/mediacapture/pkg/recording"
	"github.com/xaionaro-go/mediacapture/pkg/segmentrecorder"
	"github.com/xaionaro-go/mediacapture/pkg/timer"
)

const testSegmentDuration = 5 * time.Second

type fakeCaptureStream struct {
	closeCount atomic.Int32
	closeErr   error
}

func (s *fakeCaptureStream) Close() error {
	s.closeCount.Add(1)
	return s.closeErr
}

type fakeAcquirer struct {
	locker     sync.Mutex
	audioErr   error
	videoErr   error
	gate       chan struct{}
	audioCount int
	videoCount int
	streams    []*capture.Stream
	captures   []*fakeCaptureStream
}

var _ DeviceAcquirer = (*fakeAcquirer)(nil)

func (a *fakeAcquirer) wait() {
	a.locker.Lock()
	gate := a.gate
	a.locker.Unlock()
	if gate != nil {
		<-gate
	}
}

func (a *fakeAcquirer) AcquireAudio(ctx context.Context, constraints types.AudioConstraints) (*capture.Stream, error) {
	a.locker.Lock()
	a.audioCount++
	a.locker.Unlock()
	a.wait()

	a.locker.Lock()
	defer a.locker.Unlock()
	if a.audioErr != nil {
		return nil, a.audioErr
	}
	stream := capture.NewAudioStream(constraints.Format(), 1024)
	cs := &fakeCaptureStream{}
	stream.SetCaptureStream(cs)
	a.streams = append(a.streams, stream)
	a.captures = append(a.captures, cs)
	return stream, nil
}

func (a *fakeAcquirer) AcquireVideo(ctx context.Context, constraints types.VideoConstraints) (*capture.Stream, error) {
	a.locker.Lock()
	a.videoCount++
	a.locker.Unlock()
	a.wait()

	a.locker.Lock()
	defer a.locker.Unlock()
	if a.videoErr != nil {
		return nil, a.videoErr
	}
	cs := &fakeCaptureStream{}
	stream := capture.NewVideoStream(cs)
	a.streams = append(a.streams, stream)
	a.captures = append(a.captures, cs)
	return stream, nil
}

func (a *fakeAcquirer) Release(ctx context.Context, stream *capture.Stream) error {
	return stream.Release(ctx)
}

func (a *fakeAcquirer) counts() (int, int) {
	a.locker.Lock()
	defer a.locker.Unlock()
	return a.audioCount, a.videoCount
}

// assertAllReleased checks every acquired stream was closed exactly once.
func (a *fakeAcquirer) assertAllReleased(t *testing.T) {
	a.locker.Lock()
	defer a.locker.Unlock()
	for idx, stream := range a.streams {
		assert.True(t, stream.Released(), stream.String())
		assert.Equal(t, int32(1), a.captures[idx].closeCount.Load(), stream.String())
	}
}

type fakeRecorder struct {
	env      *testEnv
	handlers recording.Handlers
	state    recording.State
}

func (r *fakeRecorder) Start(ctx context.Context) error {
	r.state = recording.StateRecording
	return nil
}

func (r *fakeRecorder) Stop(ctx context.Context) error {
	if r.state != recording.StateRecording {
		return nil
	}
	r.state = recording.StateStopping
	if r.env.autoFlush {
		r.Flush()
	}
	return nil
}

func (r *fakeRecorder) Flush() {
	r.state = recording.StateInactive
	r.handlers.OnStop()
}

func (r *fakeRecorder) State() recording.State {
	return r.state
}

func (r *fakeRecorder) Emit(data ...byte) {
	r.handlers.OnDataAvailable(recording.Chunk{Data: data})
}

type testEnv struct {
	loop          *eventloop.Manual
	scheduler     *timer.Manual
	acquirer      *fakeAcquirer
	recorders     []*fakeRecorder
	recorderErr   error
	autoFlush     bool
	events        []Event
	shutdownCount int
	shutdownErr   error
	controller    *Controller
}

func newTestEnv() *testEnv {
	env := &testEnv{
		loop:      eventloop.NewManual(),
		scheduler: timer.NewManual(time.Unix(0, 0)),
		acquirer:  &fakeAcquirer{},
		autoFlush: true,
	}
	env.controller = New(
		Config{
			AudioConstraints: types.AudioConstraints{
				SampleRate: 16000,
				Channels:   1,
				PCMFormat:  types.PCMFormatFloat32LE,
			},
			SegmentDuration: testSegmentDuration,
		},
		env.loop,
		env.scheduler,
		env.acquirer,
		func(ctx context.Context, source recording.Source, handlers recording.Handlers) (recording.Recorder, error) {
			if env.recorderErr != nil {
				return nil, env.recorderErr
			}
			r := &fakeRecorder{env: env, handlers: handlers}
			env.recorders = append(env.recorders, r)
			return r, nil
		},
		EventSinkFunc(func(ctx context.Context, event Event) {
			env.events = append(env.events, event)
		}),
		ShutdownerFunc(func(ctx context.Context) error {
			env.shutdownCount++
			return env.shutdownErr
		}),
	)
	return env
}

func (env *testEnv) waitFor(t *testing.T, condition func() bool) {
	require.Eventually(t, func() bool {
		env.loop.Drain()
		return condition()
	}, time.Second, time.Millisecond)
}

func (env *testEnv) waitEvents(t *testing.T, count int) {
	env.waitFor(t, func() bool { return len(env.events) >= count })
	require.Len(t, env.events, count, spew.Sdump(env.events))
}

func (env *testEnv) advance(d time.Duration) {
	env.scheduler.Advance(d)
	env.loop.Drain()
}

func (env *testEnv) lastRecorder() *fakeRecorder {
	return env.recorders[len(env.recorders)-1]
}

func (env *testEnv) eventKinds() []EventKind {
	var kinds []EventKind
	for _, event := range env.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

func (env *testEnv) countEvents(kind EventKind) int {
	count := 0
	for _, event := range env.events {
		if event.Kind == kind {
			count++
		}
	}
	return count
}

func (env *testEnv) session(t *testing.T) CaptureSession {
	session, err := env.controller.Session(context.Background())
	require.NoError(t, err)
	return session
}

func requireConsistent(t *testing.T, session CaptureSession) {
	require.Equal(t, session.CameraEnabled, session.CameraStream != nil, spew.Sdump(session))
	require.Equal(t, session.MicEnabled, session.MicrophoneStream != nil, spew.Sdump(session))
	if session.RecorderState == segmentrecorder.StateRecording {
		require.True(t, session.MicEnabled, spew.Sdump(session))
	}
}

func TestToggleCamera(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.controller.ToggleCamera(ctx)
	env.waitEvents(t, 1)
	require.Equal(t, EventKindCameraEnabled, env.events[0].Kind)
	session := env.session(t)
	requireConsistent(t, session)
	require.True(t, session.CameraEnabled)
	require.Equal(t, types.KindVideo, session.CameraStream.Kind())

	env.controller.ToggleCamera(ctx)
	env.waitEvents(t, 2)
	require.Equal(t, EventKindCameraDisabled, env.events[1].Kind)
	session = env.session(t)
	requireConsistent(t, session)
	require.False(t, session.CameraEnabled)
	env.acquirer.assertAllReleased(t)
}

func TestCameraDeniedThenRetry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.acquirer.videoErr = &types.DeviceError{
		Kind:   types.KindVideo,
		Reason: types.DeviceErrorReasonDenied,
	}

	env.controller.ToggleCamera(ctx)
	env.waitEvents(t, 1)
	require.Equal(t, EventKindCameraDenied, env.events[0].Kind)
	require.ErrorIs(t, env.events[0].Err, types.ErrDenied)
	session := env.session(t)
	requireConsistent(t, session)
	require.False(t, session.CameraEnabled)

	env.acquirer.locker.Lock()
	env.acquirer.videoErr = nil
	env.acquirer.locker.Unlock()

	env.controller.ToggleCamera(ctx)
	env.waitEvents(t, 2)
	require.Equal(t, EventKindCameraEnabled, env.events[1].Kind)
	_, videoCount := env.acquirer.counts()
	require.Equal(t, 2, videoCount)
	require.True(t, env.session(t).CameraEnabled)
}

func TestToggleSerialization(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	gate := make(chan struct{})
	env.acquirer.gate = gate

	env.controller.ToggleCamera(ctx)
	env.controller.ToggleCamera(ctx)
	env.controller.ToggleCamera(ctx)
	env.waitFor(t, func() bool {
		_, videoCount := env.acquirer.counts()
		return videoCount == 1
	})
	require.Len(t, env.controller.camera.pending, 2)
	require.Empty(t, env.events)

	close(gate)
	env.waitEvents(t, 3)
	require.Equal(t, []EventKind{
		EventKindCameraEnabled,
		EventKindCameraDisabled,
		EventKindCameraEnabled,
	}, env.eventKinds())
	_, videoCount := env.acquirer.counts()
	require.Equal(t, 2, videoCount)
	session := env.session(t)
	requireConsistent(t, session)
	require.True(t, session.CameraEnabled)
}

func TestToggleMicrophone(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.controller.ToggleMicrophone(ctx)
	env.waitEvents(t, 1)
	require.Equal(t, EventKindMicEnabled, env.events[0].Kind)
	session := env.session(t)
	requireConsistent(t, session)
	require.Equal(t, segmentrecorder.StateRecording, session.RecorderState)

	env.controller.ToggleMicrophone(ctx)
	env.waitEvents(t, 2)
	require.Equal(t, EventKindMicDisabled, env.events[1].Kind)
	session = env.session(t)
	requireConsistent(t, session)
	require.Equal(t, segmentrecorder.StateStopped, session.RecorderState)
	require.Zero(t, env.scheduler.Pending())
	env.acquirer.assertAllReleased(t)

	env.controller.ToggleMicrophone(ctx)
	env.waitEvents(t, 3)
	require.Equal(t, EventKindMicEnabled, env.events[2].Kind)
	audioCount, _ := env.acquirer.counts()
	require.Equal(t, 2, audioCount)
}

func TestMicrophoneDenied(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.acquirer.audioErr = &types.DeviceError{
		Kind:   types.KindAudio,
		Reason: types.DeviceErrorReasonUnavailable,
	}

	env.controller.ToggleMicrophone(ctx)
	env.waitEvents(t, 1)
	require.Equal(t, EventKindMicDenied, env.events[0].Kind)
	require.ErrorIs(t, env.events[0].Err, types.ErrUnavailable)
	session := env.session(t)
	requireConsistent(t, session)
	require.Equal(t, segmentrecorder.StateIdle, session.RecorderState)
}

func TestEndSessionIdempotent(t *testing.T) {
	ctx := context.Background()

	for _, shutdownErr := range []error{nil, fmt.Errorf("unable to exit")} {
		t.Run(fmt.Sprintf("shutdown_err_%v", shutdownErr), func(t *testing.T) {
			env := newTestEnv()
			env.shutdownErr = shutdownErr
			env.controller.ToggleCamera(ctx)
			env.waitEvents(t, 1)

			for i := 0; i < 3; i++ {
				env.controller.EndSession(ctx)
			}
			env.loop.Drain()

			require.Equal(t, 1, env.countEvents(EventKindSessionEnded))
			require.Equal(t, 1, env.shutdownCount)
			session := env.session(t)
			requireConsistent(t, session)
			require.True(t, session.Terminated)
			require.Equal(t, uint64(1), session.SessionEpoch)
			env.acquirer.assertAllReleased(t)

			env.controller.ToggleCamera(ctx)
			env.controller.ToggleMicrophone(ctx)
			env.controller.EndSession(ctx)
			env.loop.Drain()
			require.Len(t, env.events, 2)
			require.Equal(t, 1, env.shutdownCount)
			audioCount, videoCount := env.acquirer.counts()
			require.Equal(t, 0, audioCount)
			require.Equal(t, 1, videoCount)
		})
	}
}

func TestEndSessionBeforeFirstSegment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.controller.ToggleMicrophone(ctx)
	env.waitEvents(t, 1)
	env.lastRecorder().Emit(1, 2, 3)
	env.loop.Drain()

	env.controller.EndSession(ctx)
	env.loop.Drain()
	env.advance(3 * testSegmentDuration)

	require.Zero(t, env.countEvents(EventKindSegmentReady))
	require.Equal(t, []EventKind{EventKindMicEnabled, EventKindSessionEnded}, env.eventKinds())
	session := env.session(t)
	require.Nil(t, session.MicrophoneStream)
	require.Equal(t, segmentrecorder.StateStopped, session.RecorderState)
	require.Zero(t, env.scheduler.Pending())
	env.acquirer.assertAllReleased(t)
}

func TestSegmentLoop(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.controller.ToggleMicrophone(ctx)
	env.waitEvents(t, 1)

	for idx := 0; idx < 3; idx++ {
		env.lastRecorder().Emit(byte(idx))
		env.lastRecorder().Emit(byte(idx + 10))
		env.loop.Drain()
		env.advance(testSegmentDuration)
	}

	require.Equal(t, 3, env.countEvents(EventKindSegmentReady), spew.Sdump(env.events))
	for idx, event := range env.events[1:] {
		require.Equal(t, EventKindSegmentReady, event.Kind)
		require.Equal(t, []byte{byte(idx), byte(idx + 10)}, event.Segment.Bytes())
		require.Equal(t, testSegmentDuration, event.Segment.Duration)
	}
	requireConsistent(t, env.session(t))
}

func TestEndSessionMidFlush(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.controller.ToggleCamera(ctx)
	env.waitEvents(t, 1)
	env.controller.ToggleMicrophone(ctx)
	env.waitEvents(t, 2)

	env.lastRecorder().Emit(1)
	env.loop.Drain()
	env.advance(testSegmentDuration)
	require.Equal(t, 1, env.countEvents(EventKindSegmentReady))

	env.autoFlush = false
	flushing := env.lastRecorder()
	flushing.Emit(2)
	env.loop.Drain()
	env.advance(testSegmentDuration)
	require.Equal(t, recording.StateStopping, flushing.State())

	env.controller.EndSession(ctx)
	env.loop.Drain()
	flushing.Emit(3)
	flushing.Flush()
	env.loop.Drain()
	env.advance(3 * testSegmentDuration)

	require.Equal(t, 1, env.countEvents(EventKindSegmentReady))
	require.Equal(t, 1, env.countEvents(EventKindSessionEnded))
	require.Equal(t, 1, env.shutdownCount)
	session := env.session(t)
	require.Nil(t, session.CameraStream)
	require.Nil(t, session.MicrophoneStream)
	require.Equal(t, segmentrecorder.StateStopped, session.RecorderState)
	require.Zero(t, env.scheduler.Pending())
	env.acquirer.assertAllReleased(t)
}

func TestStaleAcquisition(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	gate := make(chan struct{})
	env.acquirer.gate = gate

	env.controller.ToggleMicrophone(ctx)
	env.waitFor(t, func() bool {
		audioCount, _ := env.acquirer.counts()
		return audioCount == 1
	})
	env.controller.EndSession(ctx)
	env.loop.Drain()

	close(gate)
	env.waitFor(t, func() bool {
		env.acquirer.locker.Lock()
		defer env.acquirer.locker.Unlock()
		return len(env.acquirer.streams) == 1 && env.acquirer.streams[0].Released()
	})

	require.Equal(t, []EventKind{EventKindSessionEnded}, env.eventKinds())
	session := env.session(t)
	require.Nil(t, session.MicrophoneStream)
	require.False(t, session.MicEnabled)
	require.Empty(t, env.recorders)
	env.acquirer.assertAllReleased(t)
}

func TestRecorderFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.controller.ToggleMicrophone(ctx)
	env.waitEvents(t, 1)

	env.recorderErr = fmt.Errorf("the recorder is broken")
	env.advance(testSegmentDuration)

	require.Equal(t, []EventKind{
		EventKindMicEnabled,
		EventKindSegmentReady,
		EventKindRecorderFailed,
		EventKindMicDisabled,
	}, env.eventKinds())
	require.ErrorIs(t, env.events[2].Err, env.recorderErr)
	session := env.session(t)
	requireConsistent(t, session)
	require.False(t, session.MicEnabled)
	env.acquirer.assertAllReleased(t)

	env.recorderErr = nil
	env.controller.ToggleMicrophone(ctx)
	env.waitEvents(t, 5)
	require.Equal(t, EventKindMicEnabled, env.events[4].Kind)
}

func TestMicrophoneToggleWhileFlushing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.autoFlush = false

	env.controller.ToggleMicrophone(ctx)
	env.waitEvents(t, 1)
	flushing := env.lastRecorder()

	env.controller.ToggleMicrophone(ctx)
	env.controller.ToggleMicrophone(ctx)
	env.loop.Drain()
	require.Equal(t, recording.StateStopping, flushing.State())
	require.Len(t, env.controller.microphone.pending, 1)
	audioCount, _ := env.acquirer.counts()
	require.Equal(t, 1, audioCount)
	require.Equal(t, []EventKind{EventKindMicEnabled}, env.eventKinds())

	flushing.Flush()
	env.waitEvents(t, 3)
	require.Equal(t, []EventKind{
		EventKindMicEnabled,
		EventKindMicDisabled,
		EventKindMicEnabled,
	}, env.eventKinds())
	audioCount, _ = env.acquirer.counts()
	require.Equal(t, 2, audioCount)
	session := env.session(t)
	requireConsistent(t, session)
	require.True(t, session.MicEnabled)
	require.Equal(t, segmentrecorder.StateRecording, session.RecorderState)
}

func TestEndSessionReleaseFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.controller.ToggleCamera(ctx)
	env.waitEvents(t, 1)
	env.controller.ToggleMicrophone(ctx)
	env.waitEvents(t, 2)

	env.acquirer.locker.Lock()
	require.Len(t, env.acquirer.captures, 2)
	cameraCapture := env.acquirer.captures[0]
	micCapture := env.acquirer.captures[1]
	env.acquirer.locker.Unlock()
	cameraCapture.closeErr = fmt.Errorf("the camera is stuck")

	env.controller.EndSession(ctx)
	env.controller.EndSession(ctx)
	env.loop.Drain()

	require.Equal(t, int32(1), cameraCapture.closeCount.Load())
	require.Equal(t, int32(1), micCapture.closeCount.Load())
	require.Equal(t, 1, env.countEvents(EventKindSessionEnded))
	require.Equal(t, 1, env.shutdownCount)
	session := env.session(t)
	require.True(t, session.Terminated)
	require.Nil(t, session.CameraStream)
	require.Nil(t, session.MicrophoneStream)
}

func TestRecorderFailureAfterRetoggle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.autoFlush = false

	env.controller.ToggleMicrophone(ctx)
	env.waitEvents(t, 1)

	env.advance(testSegmentDuration)
	flushing := env.lastRecorder()
	require.Equal(t, recording.StateStopping, flushing.State())

	env.recorderErr = fmt.Errorf("the recorder is broken")
	gate := make(chan struct{})
	env.acquirer.locker.Lock()
	env.acquirer.gate = gate
	env.acquirer.locker.Unlock()

	// the failure happens while the user toggles the microphone off and on
	flushing.Flush()
	env.controller.ToggleMicrophone(ctx)
	env.controller.ToggleMicrophone(ctx)
	env.waitFor(t, func() bool {
		audioCount, _ := env.acquirer.counts()
		return audioCount == 2
	})

	env.recorderErr = nil
	close(gate)
	env.waitEvents(t, 4)
	env.loop.Drain()

	require.Equal(t, []EventKind{
		EventKindMicEnabled,
		EventKindSegmentReady,
		EventKindMicDisabled,
		EventKindMicEnabled,
	}, env.eventKinds())
	session := env.session(t)
	requireConsistent(t, session)
	require.True(t, session.MicEnabled)
	require.Equal(t, segmentrecorder.StateRecording, session.RecorderState)
	require.False(t, env.controller.microphone.busy)
}
