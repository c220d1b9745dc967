package segmentrecorder

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
	"github.com/xaionaro-go/mediacapture/pkg/recording"
)

// Segment is one bounded-duration unit of recorded audio.
type Segment struct {
	ID        uuid.UUID
	Index     uint64
	StartedAt time.Time
	Duration  time.Duration
	Format    types.AudioFormat
	Chunks    []recording.Chunk
}

func (s *Segment) String() string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("segment#%d(%s, %d chunks, %d bytes)", s.Index, s.ID, len(s.Chunks), s.Size())
}

// Size returns the total amount of bytes in the chunks.
func (s *Segment) Size() int {
	size := 0
	for _, chunk := range s.Chunks {
		size += len(chunk.Data)
	}
	return size
}

// Bytes concatenates the chunks.
func (s *Segment) Bytes() []byte {
	result := make([]byte, 0, s.Size())
	for _, chunk := range s.Chunks {
		result = append(result, chunk.Data...)
	}
	return result
}

// CapturedDuration is how much audio the segment actually contains.
func (s *Segment) CapturedDuration() time.Duration {
	return s.Format.DurationForBytes(uint64(s.Size()))
}
