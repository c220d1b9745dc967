package types

import (
	"time"
)

type AudioConstraints struct {
	SampleRate SampleRate
	Channels   Channel
	PCMFormat  PCMFormat

	// EchoCancellation and NoiseSuppression are advisory: a backend that
	// cannot provide them still captures.
	EchoCancellation bool
	NoiseSuppression bool

	// BufferDuration is the amount of audio kept between reads of the stream.
	BufferDuration time.Duration
}

func (c AudioConstraints) Format() AudioFormat {
	return AudioFormat{
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
		PCMFormat:  c.PCMFormat,
	}
}

type VideoConstraints struct {
	Width     int
	Height    int
	FrameRate float64
}
