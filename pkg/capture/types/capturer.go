package types

import (
	"context"
	"io"
)

type AudioCapturer interface {
	io.Closer
	Ping(context.Context) error

	// CapturePCM starts capturing interleaved PCM into the writer
	// until the returned stream is closed.
	CapturePCM(
		ctx context.Context,
		constraints AudioConstraints,
		writer io.Writer,
	) (CaptureStream, error)
}

type VideoCapturer interface {
	io.Closer
	Ping(context.Context) error

	CaptureVideo(
		ctx context.Context,
		constraints VideoConstraints,
	) (CaptureStream, error)
}
