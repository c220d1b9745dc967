package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/iamcalledrob/circular"
)

// PCMBuffer is a bounded FIFO of captured PCM. When it is full the oldest
// audio is dropped, so a slow reader never blocks the capturing backend.
type PCMBuffer struct {
	locker  sync.Mutex
	buffer  *circular.Buffer
	size    int
	scratch []byte
	dropped uint64
}

var _ io.Writer = (*PCMBuffer)(nil)

func NewPCMBuffer(size int) *PCMBuffer {
	if size <= 0 {
		size = 1
	}
	return &PCMBuffer{
		buffer: circular.NewBuffer(size),
		size:   size,
	}
}

func (b *PCMBuffer) Write(p []byte) (int, error) {
	b.locker.Lock()
	defer b.locker.Unlock()

	n := len(p)
	if len(p) > b.size {
		b.dropped += uint64(len(p) - b.size)
		p = p[len(p)-b.size:]
	}
	for {
		_, err := b.buffer.Write(p)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, circular.ErrNoSpace) {
			return 0, fmt.Errorf("unable to write to the circular buffer: %w", err)
		}

		if cap(b.scratch) < len(p) {
			b.scratch = make([]byte, len(p))
		}
		r, err := b.buffer.Read(b.scratch[:len(p)])
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("unable to drop old data from the circular buffer: %w", err)
		}
		if r <= 0 {
			return 0, fmt.Errorf("the circular buffer is full, but nothing could be dropped")
		}
		b.dropped += uint64(r)
	}
}

// Take removes and returns everything buffered so far.
func (b *PCMBuffer) Take() []byte {
	b.locker.Lock()
	defer b.locker.Unlock()

	var result []byte
	buf := make([]byte, b.size)
	for {
		n, err := b.buffer.Read(buf)
		if n > 0 {
			result = append(result, buf[:n]...)
		}
		if err != nil || n == 0 {
			return result
		}
	}
}

// Discard drops everything buffered so far and returns how many bytes were dropped.
func (b *PCMBuffer) Discard() int {
	return len(b.Take())
}

// Dropped returns how many bytes were lost due to overflows.
func (b *PCMBuffer) Dropped() uint64 {
	b.locker.Lock()
	defer b.locker.Unlock()
	return b.dropped
}
