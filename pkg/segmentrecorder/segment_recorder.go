// Package segmentrecorder records an audio stream as a sequence of
// fixed-duration segments.
package segmentrecorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/google/uuid"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
	"github.com/xaionaro-go/mediacapture/pkg/eventloop"
	"github.com/xaionaro-go/mediacapture/pkg/recording"
	"github.com/xaionaro-go/mediacapture/pkg/timer"
)

const (
	DefaultGap = 100 * time.Millisecond
	MaxGap     = 200 * time.Millisecond
)

var ErrInvalidState = errors.New("invalid segment recorder state")

// Stream is the audio a SegmentRecorder records.
type Stream interface {
	recording.Source
	Format() types.AudioFormat
}

type Handlers struct {
	// OnSegment receives every completed segment.
	OnSegment func(ctx context.Context, segment *Segment)

	// OnError is called (via the loop) when the recorder had to stop
	// because the recording primitive failed. It is not called if the
	// recorder was started or stopped again in the meantime.
	OnError func(ctx context.Context, err error)
}

// SegmentRecorder runs the "record for a duration, emit, repeat" loop.
//
// It is not thread-safe: every method must be called on Loop, and every
// deferred continuation is posted back to Loop. A continuation is dropped
// if the run it was scheduled in is over, or if the session epoch it was
// started with is no longer current.
type SegmentRecorder struct {
	Loop         eventloop.Loop
	Scheduler    timer.Scheduler
	NewRecorder  recording.NewRecorderFunc
	CurrentEpoch func() uint64
	Handlers     Handlers
	Gap          time.Duration

	ctx          context.Context
	state        State
	run          uint64
	epoch        uint64
	stream       Stream
	duration     time.Duration
	segmentCount uint64
	active       *activeSegment
	segmentTimer timer.Handle
	nextTimer    timer.Handle
	stopWaiters  []func()
}

type activeSegment struct {
	run      uint64
	segment  *Segment
	recorder recording.Recorder
	stopping bool
}

func New(
	loop eventloop.Loop,
	scheduler timer.Scheduler,
	newRecorder recording.NewRecorderFunc,
	currentEpoch func() uint64,
	handlers Handlers,
	gap time.Duration,
) *SegmentRecorder {
	return &SegmentRecorder{
		Loop:         loop,
		Scheduler:    scheduler,
		NewRecorder:  newRecorder,
		CurrentEpoch: currentEpoch,
		Handlers:     handlers,
		Gap:          gap,
		ctx:          context.Background(),
	}
}

func (r *SegmentRecorder) State() State {
	return r.state
}

// Run identifies the current run; it changes on every Start, Stop and
// failure.
func (r *SegmentRecorder) Run() uint64 {
	return r.run
}

// Start begins the segment loop over the stream. The loop keeps going
// while the session epoch stays equal to epoch.
func (r *SegmentRecorder) Start(
	ctx context.Context,
	stream Stream,
	segmentDuration time.Duration,
	epoch uint64,
) (_err error) {
	logger.Debugf(ctx, "Start(%s, %d)", segmentDuration, epoch)
	defer func() { logger.Debugf(ctx, "/Start(%s, %d): %v", segmentDuration, epoch, _err) }()

	switch r.state {
	case StateIdle, StateStopped:
	default:
		return fmt.Errorf("unable to start in state '%s': %w", r.state, ErrInvalidState)
	}
	if stream == nil {
		return fmt.Errorf("stream is not set")
	}
	if segmentDuration <= 0 {
		return fmt.Errorf("segment duration must be positive, but is %s", segmentDuration)
	}
	if r.Gap < 0 || r.Gap > MaxGap {
		return fmt.Errorf("the gap between segments must be within [0, %s], but is %s", MaxGap, r.Gap)
	}

	r.ctx = ctx
	r.run++
	r.epoch = epoch
	r.stream = stream
	r.duration = segmentDuration
	r.state = StateRecording
	if err := r.beginSegment(ctx, false); err != nil {
		r.run++
		r.state = StateStopped
		r.stream = nil
		return err
	}
	return nil
}

func (r *SegmentRecorder) beginSegment(ctx context.Context, continued bool) error {
	var source recording.Source = r.stream
	if continued {
		source = continuedStream{r.stream}
	}
	active := &activeSegment{
		run: r.run,
		segment: &Segment{
			ID:        uuid.New(),
			Index:     r.segmentCount,
			StartedAt: r.Scheduler.Now(),
			Duration:  r.duration,
			Format:    r.stream.Format(),
		},
	}
	handlers := recording.Handlers{
		OnDataAvailable: func(chunk recording.Chunk) {
			r.Loop.Post(func() { r.onChunk(active, chunk) })
		},
		OnStop: func() {
			r.Loop.Post(func() { r.onRecorderStopped(active) })
		},
	}

	recorder, err := r.NewRecorder(ctx, source, handlers)
	if err != nil {
		return fmt.Errorf("unable to initialize a recorder: %w", err)
	}
	active.recorder = recorder
	if err := recorder.Start(ctx); err != nil {
		return fmt.Errorf("unable to start the recorder: %w", err)
	}
	r.segmentCount++
	r.active = active
	r.segmentTimer = r.Scheduler.Schedule(r.duration, func() {
		r.Loop.Post(func() { r.onSegmentTimeout(active) })
	})
	logger.Tracef(ctx, "began %s", active.segment)
	return nil
}

func (r *SegmentRecorder) onChunk(active *activeSegment, chunk recording.Chunk) {
	if active.segment == nil {
		logger.Tracef(r.ctx, "a chunk of %d bytes arrived after the segment was finalized", len(chunk.Data))
		return
	}
	active.segment.Chunks = append(active.segment.Chunks, chunk)
}

func (r *SegmentRecorder) onSegmentTimeout(active *activeSegment) {
	ctx := r.ctx
	if active != r.active || active.stopping || r.state != StateRecording {
		logger.Tracef(ctx, "stale segment timer")
		return
	}
	r.segmentTimer = nil
	active.stopping = true
	if err := active.recorder.Stop(ctx); err != nil {
		r.fail(ctx, fmt.Errorf("unable to stop the recorder: %w", err))
	}
}

func (r *SegmentRecorder) onRecorderStopped(active *activeSegment) {
	ctx := r.ctx
	if active != r.active {
		logger.Tracef(ctx, "stale recorder stop")
		return
	}
	r.active = nil
	timer.Cancel(r.segmentTimer)
	r.segmentTimer = nil
	segment := active.segment
	active.segment = nil

	switch r.state {
	case StateRecording:
		if active.run != r.run {
			logger.Tracef(ctx, "the run is over, dropping %s", segment)
			return
		}
		if r.epoch != r.CurrentEpoch() {
			logger.Tracef(ctx, "epoch changed %d -> %d, dropping %s", r.epoch, r.CurrentEpoch(), segment)
			r.setStopped()
			return
		}
		logger.Debugf(ctx, "completed %s", segment)
		if r.Handlers.OnSegment != nil {
			r.Handlers.OnSegment(ctx, segment)
		}
		r.scheduleNextSegment(ctx)
	case StateStopping:
		logger.Debugf(ctx, "discarding %s of a stopped recording", segment)
		r.setStopped()
	default:
		logger.Tracef(ctx, "recorder stopped in state '%s'", r.state)
	}
}

func (r *SegmentRecorder) scheduleNextSegment(ctx context.Context) {
	if r.state != StateRecording || r.epoch != r.CurrentEpoch() {
		return
	}
	if r.Gap <= 0 {
		r.startNextSegment(ctx, r.run)
		return
	}
	run := r.run
	r.nextTimer = r.Scheduler.Schedule(r.Gap, func() {
		r.Loop.Post(func() { r.startNextSegment(r.ctx, run) })
	})
}

func (r *SegmentRecorder) startNextSegment(ctx context.Context, run uint64) {
	r.nextTimer = nil
	if run != r.run || r.state != StateRecording {
		logger.Tracef(ctx, "stale next-segment timer")
		return
	}
	if r.epoch != r.CurrentEpoch() {
		logger.Tracef(ctx, "epoch changed %d -> %d, not starting the next segment", r.epoch, r.CurrentEpoch())
		r.setStopped()
		return
	}
	if err := r.beginSegment(ctx, true); err != nil {
		r.fail(ctx, err)
	}
}

// Stop ends the loop. The segment in progress is flushed and discarded.
// done is called once the recorder is Stopped (immediately if nothing was
// recording); calling Stop in any state other than Recording only waits
// for that.
func (r *SegmentRecorder) Stop(ctx context.Context, done func()) {
	logger.Debugf(ctx, "Stop (state: %s)", r.state)
	defer func() { logger.Debugf(ctx, "/Stop (state: %s)", r.state) }()

	if done != nil {
		r.stopWaiters = append(r.stopWaiters, done)
	}

	switch r.state {
	case StateIdle, StateStopped:
		r.run++
		r.notifyStopped()
		return
	case StateStopping:
		return
	}

	r.run++
	timer.Cancel(r.segmentTimer)
	r.segmentTimer = nil
	timer.Cancel(r.nextTimer)
	r.nextTimer = nil

	active := r.active
	if active == nil {
		r.setStopped()
		return
	}

	r.state = StateStopping
	if active.stopping {
		logger.Tracef(ctx, "the recorder is already flushing")
		return
	}
	active.stopping = true
	if err := active.recorder.Stop(ctx); err != nil {
		logger.Errorf(ctx, "unable to stop the recorder: %v", err)
		r.active = nil
		r.setStopped()
	}
}

func (r *SegmentRecorder) setStopped() {
	r.state = StateStopped
	r.stream = nil
	r.notifyStopped()
}

func (r *SegmentRecorder) notifyStopped() {
	waiters := r.stopWaiters
	r.stopWaiters = nil
	for _, done := range waiters {
		done()
	}
}

func (r *SegmentRecorder) fail(ctx context.Context, err error) {
	logger.Errorf(ctx, "the segment recorder failed: %v", err)
	r.run++
	timer.Cancel(r.segmentTimer)
	r.segmentTimer = nil
	timer.Cancel(r.nextTimer)
	r.nextTimer = nil
	if r.active != nil {
		r.active.segment = nil
		r.active = nil
	}
	r.setStopped()
	if r.Handlers.OnError == nil {
		return
	}
	run := r.run
	r.Loop.Post(func() {
		if run != r.run {
			logger.Tracef(ctx, "the recorder was restarted or stopped since the failure, dropping: %v", err)
			return
		}
		r.Handlers.OnError(ctx, err)
	})
}

// continuedStream keeps the PCM buffered since the previous segment of the
// same run: it belongs to the next segment.
type continuedStream struct {
	Stream
}

func (continuedStream) DiscardPCM() int {
	return 0
}
