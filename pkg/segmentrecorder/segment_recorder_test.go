package segmentrecorder

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
	"github.com/xaionaro-go/mediacapture/pkg/eventloop"
	"github.com/xaionaro-go/mediacapture/pkg/recording"
	"github.com/xaionaro-go/mediacapture/pkg/timer"
)

const testSegmentDuration = 5 * time.Second

type fakeStream struct{}

func (fakeStream) TakePCM() []byte { return nil }
func (fakeStream) DiscardPCM() int { return 0 }
func (fakeStream) Format() types.AudioFormat {
	return types.AudioFormat{SampleRate: 16000, Channels: 1, PCMFormat: types.PCMFormatS16LE}
}

type fakeRecorder struct {
	handlers  recording.Handlers
	state     recording.State
	autoFlush bool
	stopCount int
}

func (r *fakeRecorder) Start(ctx context.Context) error {
	r.state = recording.StateRecording
	return nil
}

func (r *fakeRecorder) Stop(ctx context.Context) error {
	r.stopCount++
	if r.state != recording.StateRecording {
		return nil
	}
	r.state = recording.StateStopping
	if r.autoFlush {
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
	loop      *eventloop.Manual
	scheduler *timer.Manual
	epoch     uint64
	recorders []*fakeRecorder
	sources   []recording.Source
	segments  []*Segment
	errors    []error
	autoFlush bool
	newErr    error
	recorder  *SegmentRecorder
}

func newTestEnv(gap time.Duration) *testEnv {
	env := &testEnv{
		loop:      eventloop.NewManual(),
		scheduler: timer.NewManual(time.Unix(0, 0)),
		epoch:     1,
		autoFlush: true,
	}
	env.recorder = New(
		env.loop,
		env.scheduler,
		func(ctx context.Context, source recording.Source, handlers recording.Handlers) (recording.Recorder, error) {
			if env.newErr != nil {
				return nil, env.newErr
			}
			r := &fakeRecorder{handlers: handlers, autoFlush: env.autoFlush}
			env.sources = append(env.sources, source)
			env.recorders = append(env.recorders, r)
			return r, nil
		},
		func() uint64 { return env.epoch },
		Handlers{
			OnSegment: func(ctx context.Context, segment *Segment) {
				env.segments = append(env.segments, segment)
			},
			OnError: func(ctx context.Context, err error) {
				env.errors = append(env.errors, err)
			},
		},
		gap,
	)
	return env
}

func (env *testEnv) lastRecorder() *fakeRecorder {
	return env.recorders[len(env.recorders)-1]
}

func (env *testEnv) advance(d time.Duration) {
	env.scheduler.Advance(d)
	env.loop.Drain()
}

func TestSegmentLoop(t *testing.T) {
	ctx := context.Background()

	for _, gap := range []time.Duration{0, DefaultGap} {
		t.Run(fmt.Sprintf("gap_%s", gap), func(t *testing.T) {
			env := newTestEnv(gap)
			require.NoError(t, env.recorder.Start(ctx, fakeStream{}, testSegmentDuration, env.epoch))
			require.Equal(t, StateRecording, env.recorder.State())

			for idx := 0; idx < 3; idx++ {
				require.Len(t, env.recorders, idx+1)
				env.lastRecorder().Emit(byte(idx), byte(idx))
				env.lastRecorder().Emit(byte(idx))
				env.loop.Drain()
				env.advance(testSegmentDuration)
				if gap > 0 {
					env.advance(gap)
				}
			}

			require.Len(t, env.segments, 3, spew.Sdump(env.segments))
			for idx, segment := range env.segments {
				require.Equal(t, uint64(idx), segment.Index)
				require.Equal(t, []byte{byte(idx), byte(idx), byte(idx)}, segment.Bytes())
				require.Equal(t, 3, segment.Size())
				require.Equal(t, testSegmentDuration, segment.Duration)
			}
			require.NotEqual(t, env.segments[0].ID, env.segments[1].ID)
			require.Equal(t, StateRecording, env.recorder.State())
			require.Len(t, env.recorders, 4)
			require.Empty(t, env.errors)
		})
	}
}

func TestStop(t *testing.T) {
	ctx := context.Background()

	t.Run("while_idle", func(t *testing.T) {
		env := newTestEnv(0)
		doneCount := 0
		env.recorder.Stop(ctx, func() { doneCount++ })
		require.Equal(t, 1, doneCount)
		require.Equal(t, StateIdle, env.recorder.State())
	})

	t.Run("mid_segment", func(t *testing.T) {
		env := newTestEnv(0)
		env.autoFlush = false
		require.NoError(t, env.recorder.Start(ctx, fakeStream{}, testSegmentDuration, env.epoch))
		env.lastRecorder().Emit(1)
		env.loop.Drain()

		doneCount := 0
		env.recorder.Stop(ctx, func() { doneCount++ })
		require.Equal(t, StateStopping, env.recorder.State())
		env.recorder.Stop(ctx, func() { doneCount++ })
		require.Equal(t, 0, doneCount)
		require.Equal(t, 1, env.lastRecorder().stopCount)
		require.Zero(t, env.scheduler.Pending())

		env.lastRecorder().Emit(2)
		env.lastRecorder().Flush()
		env.loop.Drain()

		require.Equal(t, 2, doneCount)
		require.Equal(t, StateStopped, env.recorder.State())
		require.Empty(t, env.segments)

		env.recorder.Stop(ctx, func() { doneCount++ })
		require.Equal(t, 3, doneCount)
	})

	t.Run("mid_flush", func(t *testing.T) {
		env := newTestEnv(0)
		env.autoFlush = false
		require.NoError(t, env.recorder.Start(ctx, fakeStream{}, testSegmentDuration, env.epoch))
		env.advance(testSegmentDuration)
		require.Equal(t, 1, env.lastRecorder().stopCount)

		stopped := false
		env.recorder.Stop(ctx, func() { stopped = true })
		require.False(t, stopped)
		require.Equal(t, 1, env.lastRecorder().stopCount)

		env.lastRecorder().Flush()
		env.loop.Drain()
		require.True(t, stopped)
		require.Empty(t, env.segments)
		require.Len(t, env.recorders, 1)
	})

	t.Run("during_gap", func(t *testing.T) {
		env := newTestEnv(DefaultGap)
		require.NoError(t, env.recorder.Start(ctx, fakeStream{}, testSegmentDuration, env.epoch))
		env.advance(testSegmentDuration)
		require.Len(t, env.segments, 1)
		require.Equal(t, 1, env.scheduler.Pending())

		stopped := false
		env.recorder.Stop(ctx, func() { stopped = true })
		require.True(t, stopped)
		require.Zero(t, env.scheduler.Pending())

		env.advance(time.Hour)
		require.Len(t, env.recorders, 1)
		require.Equal(t, StateStopped, env.recorder.State())
	})

	t.Run("restart", func(t *testing.T) {
		env := newTestEnv(0)
		require.NoError(t, env.recorder.Start(ctx, fakeStream{}, testSegmentDuration, env.epoch))
		env.recorder.Stop(ctx, nil)
		env.loop.Drain()
		require.Equal(t, StateStopped, env.recorder.State())

		require.NoError(t, env.recorder.Start(ctx, fakeStream{}, testSegmentDuration, env.epoch))
		env.lastRecorder().Emit(7)
		env.loop.Drain()
		env.advance(testSegmentDuration)
		require.Len(t, env.segments, 1)
		require.Equal(t, []byte{7}, env.segments[0].Bytes())
	})
}

func TestEpochMismatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(0)
	require.NoError(t, env.recorder.Start(ctx, fakeStream{}, testSegmentDuration, env.epoch))
	env.lastRecorder().Emit(1)
	env.loop.Drain()

	env.epoch++
	env.advance(testSegmentDuration)

	require.Empty(t, env.segments)
	require.Equal(t, StateStopped, env.recorder.State())
	require.Len(t, env.recorders, 1)
	require.Zero(t, env.scheduler.Pending())
}

func TestStartErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid_state", func(t *testing.T) {
		env := newTestEnv(0)
		require.NoError(t, env.recorder.Start(ctx, fakeStream{}, testSegmentDuration, env.epoch))
		require.ErrorIs(t, env.recorder.Start(ctx, fakeStream{}, testSegmentDuration, env.epoch), ErrInvalidState)
	})

	t.Run("invalid_arguments", func(t *testing.T) {
		env := newTestEnv(0)
		require.Error(t, env.recorder.Start(ctx, nil, testSegmentDuration, env.epoch))
		require.Error(t, env.recorder.Start(ctx, fakeStream{}, 0, env.epoch))
		env.recorder.Gap = MaxGap + time.Millisecond
		require.Error(t, env.recorder.Start(ctx, fakeStream{}, testSegmentDuration, env.epoch))
		require.Equal(t, StateIdle, env.recorder.State())
	})

	t.Run("first_primitive", func(t *testing.T) {
		env := newTestEnv(0)
		env.newErr = fmt.Errorf("no way")
		require.Error(t, env.recorder.Start(ctx, fakeStream{}, testSegmentDuration, env.epoch))
		require.Equal(t, StateStopped, env.recorder.State())
		require.Zero(t, env.scheduler.Pending())
	})

	t.Run("next_primitive", func(t *testing.T) {
		env := newTestEnv(0)
		require.NoError(t, env.recorder.Start(ctx, fakeStream{}, testSegmentDuration, env.epoch))
		env.newErr = fmt.Errorf("no way")
		env.advance(testSegmentDuration)

		require.Len(t, env.segments, 1)
		require.Equal(t, StateStopped, env.recorder.State())
		require.Len(t, env.errors, 1)
		require.ErrorIs(t, env.errors[0], env.newErr)
		require.Zero(t, env.scheduler.Pending())
	})
}

type discardCountingStream struct {
	fakeStream
	discards int
}

func (s *discardCountingStream) DiscardPCM() int {
	s.discards++
	return 0
}

func TestDiscardOnlyOnRunStart(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(0)
	stream := &discardCountingStream{}

	require.NoError(t, env.recorder.Start(ctx, stream, testSegmentDuration, env.epoch))
	env.advance(testSegmentDuration)
	env.advance(testSegmentDuration)
	require.Len(t, env.sources, 3)
	for _, source := range env.sources {
		source.DiscardPCM()
	}
	require.Equal(t, 1, stream.discards)

	env.recorder.Stop(ctx, nil)
	env.loop.Drain()
	require.NoError(t, env.recorder.Start(ctx, stream, testSegmentDuration, env.epoch))
	env.sources[len(env.sources)-1].DiscardPCM()
	require.Equal(t, 2, stream.discards)
}

func TestStaleError(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(0)
	require.NoError(t, env.recorder.Start(ctx, fakeStream{}, testSegmentDuration, env.epoch))
	env.newErr = fmt.Errorf("no way")

	// Stop lands between the failure and the delivery of its error
	env.scheduler.Advance(testSegmentDuration)
	env.loop.Post(func() {
		env.loop.Post(func() { env.recorder.Stop(ctx, nil) })
	})
	env.loop.Drain()

	require.Len(t, env.segments, 1)
	require.Equal(t, StateStopped, env.recorder.State())
	require.Empty(t, env.errors)
}
