package recording

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
)

const (
	DefaultTimeslice = time.Second
)

// PCMRecorder periodically drains the PCM buffered by a Source and reports
// it as chunks.
type PCMRecorder struct {
	Source    Source
	Handlers  Handlers
	Timeslice time.Duration
	Now       func() time.Time

	locker sync.Mutex
	state  State
	stopCh chan struct{}
}

var _ Recorder = (*PCMRecorder)(nil)

// NewPCMRecorder emits a chunk every timeslice; a zero timeslice means a
// single chunk when the recording is stopped.
func NewPCMRecorder(
	source Source,
	handlers Handlers,
	timeslice time.Duration,
) *PCMRecorder {
	return &PCMRecorder{
		Source:    source,
		Handlers:  handlers,
		Timeslice: timeslice,
		Now:       time.Now,
	}
}

// PCMRecorderFactory returns a NewRecorderFunc building PCMRecorders.
func PCMRecorderFactory(timeslice time.Duration) NewRecorderFunc {
	return func(ctx context.Context, source Source, handlers Handlers) (Recorder, error) {
		if source == nil {
			return nil, fmt.Errorf("source is not set")
		}
		return NewPCMRecorder(source, handlers, timeslice), nil
	}
}

func (r *PCMRecorder) State() State {
	r.locker.Lock()
	defer r.locker.Unlock()
	return r.state
}

func (r *PCMRecorder) Start(ctx context.Context) error {
	r.locker.Lock()
	defer r.locker.Unlock()
	if r.state != StateInactive {
		return fmt.Errorf("unable to start a recorder in state '%s': %w", r.state, ErrInvalidState)
	}

	if dropped := r.Source.DiscardPCM(); dropped > 0 {
		logger.Tracef(ctx, "discarded %d bytes captured before the recording started", dropped)
	}

	stopCh := make(chan struct{})
	r.stopCh = stopCh
	r.state = StateRecording
	observability.Go(ctx, func(ctx context.Context) {
		r.captureLoop(ctx, stopCh)
	})
	return nil
}

func (r *PCMRecorder) Stop(ctx context.Context) error {
	r.locker.Lock()
	defer r.locker.Unlock()
	if r.state != StateRecording {
		logger.Tracef(ctx, "Stop in state '%s' is a no-op", r.state)
		return nil
	}
	r.state = StateStopping
	close(r.stopCh)
	return nil
}

func (r *PCMRecorder) captureLoop(
	ctx context.Context,
	stopCh <-chan struct{},
) {
	logger.Tracef(ctx, "captureLoop")
	defer logger.Tracef(ctx, "/captureLoop")

	var tickCh <-chan time.Time
	if r.Timeslice > 0 {
		ticker := time.NewTicker(r.Timeslice)
		defer ticker.Stop()
		tickCh = ticker.C
	}

	for {
		select {
		case <-tickCh:
			r.emitAvailable()
		case <-ctx.Done():
			r.finish()
			return
		case <-stopCh:
			r.finish()
			return
		}
	}
}

func (r *PCMRecorder) emitAvailable() {
	data := r.Source.TakePCM()
	if len(data) == 0 {
		return
	}
	if r.Handlers.OnDataAvailable != nil {
		r.Handlers.OnDataAvailable(Chunk{
			Data:      data,
			Timestamp: r.Now(),
		})
	}
}

func (r *PCMRecorder) finish() {
	r.emitAvailable()

	r.locker.Lock()
	r.state = StateInactive
	r.locker.Unlock()

	if r.Handlers.OnStop != nil {
		r.Handlers.OnStop()
	}
}
