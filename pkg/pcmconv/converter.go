// Package pcmconv converts interleaved PCM between sample formats, sample
// rates (nearest-sample) and channel layouts (mono<->N).
package pcmconv

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
)

const (
	distanceStep = 10000
)

type Converter struct {
	locker sync.Mutex
	input  io.Reader
	from   types.AudioFormat
	to     types.AudioFormat

	fromCodec sampleCodec
	toCodec   sampleCodec

	fromSampleSize  uint
	toSampleSize    uint
	inAverage       uint
	outRepeat       uint
	outDistanceStep uint64

	inDistance  uint64
	outDistance uint64
	buffer      []byte
}

var _ io.Reader = (*Converter)(nil)

func NewConverter(
	from types.AudioFormat,
	input io.Reader,
	to types.AudioFormat,
) (*Converter, error) {
	c := &Converter{
		input: input,
		from:  from,
		to:    to,
	}
	if err := c.init(); err != nil {
		return nil, fmt.Errorf("unable to initialize a converter from %#+v to %#+v: %w", from, to, err)
	}
	return c, nil
}

func (c *Converter) init() error {
	var err error
	c.fromCodec, err = codecFor(c.from.PCMFormat)
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}
	c.toCodec, err = codecFor(c.to.PCMFormat)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if c.from.SampleRate == 0 || c.to.SampleRate == 0 {
		return fmt.Errorf("sample rate is not set")
	}
	if c.from.Channels == 0 || c.to.Channels == 0 {
		return fmt.Errorf("amount of channels is not set")
	}

	c.fromSampleSize = c.from.PCMFormat.Size()
	c.toSampleSize = c.to.PCMFormat.Size()

	c.inAverage = 1
	c.outRepeat = 1
	if c.from.Channels != c.to.Channels {
		switch {
		case c.from.Channels == 1:
			c.outRepeat = uint(c.to.Channels)
		case c.to.Channels == 1:
			c.inAverage = uint(c.from.Channels)
		default:
			return fmt.Errorf("do not know how to convert %d channels to %d", c.from.Channels, c.to.Channels)
		}
	}

	c.outDistanceStep = uint64(float64(distanceStep) * float64(c.from.SampleRate) / float64(c.to.SampleRate))
	return nil
}

func (c *Converter) inFrameSize() uint {
	return c.fromSampleSize * c.inAverage
}

func (c *Converter) outFrameSize() uint {
	return c.toSampleSize * c.outRepeat
}

func (c *Converter) Read(p []byte) (int, error) {
	c.locker.Lock()
	defer c.locker.Unlock()

	maxOutFrames := uint64(len(p)) / uint64(c.outFrameSize())
	if maxOutFrames == 0 {
		return 0, nil
	}

	framesToRead := maxOutFrames * uint64(c.from.SampleRate) / uint64(c.to.SampleRate)
	if framesToRead == 0 {
		framesToRead = 1
	}
	bytesToRead := int(framesToRead * uint64(c.inFrameSize()))
	if cap(c.buffer) < bytesToRead {
		c.buffer = make([]byte, bytesToRead)
	}
	c.buffer = c.buffer[:bytesToRead]

	n, err := io.ReadFull(c.input, c.buffer)
	switch err {
	case nil:
	case io.ErrUnexpectedEOF:
		err = nil
	}
	c.buffer = c.buffer[:n]
	if n%int(c.inFrameSize()) != 0 {
		return 0, fmt.Errorf("read a number of bytes (%d) that is not a multiple of %d", n, c.inFrameSize())
	}
	framesRead := uint64(n) / uint64(c.inFrameSize())

	var outIdx, inIdx uint64
	for inIdx < framesRead && outIdx < maxOutFrames {
		for c.inDistance < c.outDistance && inIdx < framesRead {
			inIdx++
			c.inDistance += distanceStep
		}
		if inIdx >= framesRead {
			break
		}

		frame := c.buffer[inIdx*uint64(c.inFrameSize()):]
		var sum float64
		for ch := uint(0); ch < c.inAverage; ch++ {
			sum += c.fromCodec.decode(frame[ch*c.fromSampleSize:])
		}
		value := sum / float64(c.inAverage)

		for outIdx < maxOutFrames && c.outDistance <= c.inDistance {
			out := p[outIdx*uint64(c.outFrameSize()):]
			for ch := uint(0); ch < c.outRepeat; ch++ {
				c.toCodec.encode(out[ch*c.toSampleSize:], value)
			}
			outIdx++
			c.outDistance += c.outDistanceStep
		}

		inIdx++
		c.inDistance += distanceStep
	}

	if outIdx == 0 && err == nil && n == 0 {
		err = io.EOF
	}
	return int(outIdx * uint64(c.outFrameSize())), err
}

// Convert converts a complete in-memory PCM buffer.
func Convert(
	from types.AudioFormat,
	data []byte,
	to types.AudioFormat,
) ([]byte, error) {
	c, err := NewConverter(from, bytes.NewReader(data), to)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	buf := make([]byte, 4096*int(c.outFrameSize()))
	for {
		n, err := c.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			return out.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("unable to convert: %w", err)
		}
	}
}
