package types

import (
	"io"
)

// CaptureStream is a running backend capture; Close stops all its tracks.
type CaptureStream interface {
	io.Closer
}
