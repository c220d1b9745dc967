package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
	"github.com/xaionaro-go/mediacapture/pkg/controller"
	"github.com/xaionaro-go/mediacapture/pkg/pcmconv"
	"github.com/xaionaro-go/mediacapture/pkg/segmentrecorder"
	"github.com/xaionaro-go/observability"
)

const (
	wavBitDepth       = 16
	wavFormatPCM      = 1
	defaultQueueLimit = 16
)

// WAVFiles writes every ready segment into its own WAV file in Dir.
// Files are written by a background goroutine; Close waits for it.
type WAVFiles struct {
	Dir      string
	Language string

	// OnWritten is called after a file is written (or failed to be written).
	OnWritten func(path string, err error)

	queueLocker sync.Mutex
	queue       chan *segmentrecorder.Segment
	closed      bool
	wg          sync.WaitGroup
}

var _ controller.EventSink = (*WAVFiles)(nil)

func NewWAVFiles(
	ctx context.Context,
	dir string,
	language string,
) (*WAVFiles, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("unable to create directory '%s': %w", dir, err)
	}
	s := &WAVFiles{
		Dir:      dir,
		Language: language,
		queue:    make(chan *segmentrecorder.Segment, defaultQueueLimit),
	}
	s.wg.Add(1)
	observability.Go(ctx, func(ctx context.Context) {
		defer s.wg.Done()
		s.writerLoop(ctx)
	})
	return s, nil
}

func (s *WAVFiles) OnEvent(ctx context.Context, event controller.Event) {
	if event.Kind != controller.EventKindSegmentReady || event.Segment == nil {
		return
	}
	s.queueLocker.Lock()
	defer s.queueLocker.Unlock()
	if s.closed {
		logger.Warnf(ctx, "the WAV writer is closed, dropping %s", event.Segment)
		return
	}
	select {
	case s.queue <- event.Segment:
	default:
		logger.Warnf(ctx, "the WAV writer is lagging behind, dropping %s", event.Segment)
	}
}

func (s *WAVFiles) writerLoop(ctx context.Context) {
	logger.Debugf(ctx, "writerLoop")
	defer logger.Debugf(ctx, "/writerLoop")
	for segment := range s.queue {
		path := filepath.Join(s.Dir, FileName(segment, s.Language))
		err := WriteWAV(path, segment)
		if err != nil {
			logger.Errorf(ctx, "unable to write %s: %v", segment, err)
		} else {
			logger.Debugf(ctx, "wrote %s into '%s'", segment, path)
		}
		if s.OnWritten != nil {
			s.OnWritten(path, err)
		}
	}
}

// Close stops accepting segments and waits until the queued ones are written.
func (s *WAVFiles) Close() error {
	s.queueLocker.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.queueLocker.Unlock()
	s.wg.Wait()
	return nil
}

// FileName is "<index>_<language>_<id>.wav"; the language part is omitted
// when unknown.
func FileName(segment *segmentrecorder.Segment, language string) string {
	parts := []string{fmt.Sprintf("%06d", segment.Index)}
	if language != "" {
		parts = append(parts, language)
	}
	parts = append(parts, segment.ID.String())
	return strings.Join(parts, "_") + ".wav"
}

// WriteWAV writes the segment as 16-bit PCM WAV.
func WriteWAV(path string, segment *segmentrecorder.Segment) (_err error) {
	format := segment.Format
	outFormat := types.AudioFormat{
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		PCMFormat:  types.PCMFormatS16LE,
	}
	pcm, err := pcmconv.Convert(format, segment.Bytes(), outFormat)
	if err != nil {
		return fmt.Errorf("unable to convert %s to %s: %w", format.PCMFormat, outFormat.PCMFormat, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create file '%s': %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil && _err == nil {
			_err = fmt.Errorf("unable to close file '%s': %w", path, err)
		}
	}()

	enc := wav.NewEncoder(f, int(format.SampleRate), wavBitDepth, int(format.Channels), wavFormatPCM)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: int(format.Channels),
			SampleRate:  int(format.SampleRate),
		},
		Data:           make([]int, len(pcm)/2),
		SourceBitDepth: wavBitDepth,
	}
	for idx := range buf.Data {
		buf.Data[idx] = int(int16(uint16(pcm[2*idx]) | uint16(pcm[2*idx+1])<<8))
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return fmt.Errorf("unable to write the samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("unable to finalize the WAV file: %w", err)
	}
	return nil
}
