package registry

import (
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
)

type VideoCapturerFactory interface {
	NewVideoCapturer() (types.VideoCapturer, error)
}

var videoCapturers registry[VideoCapturerFactory]

func RegisterVideoCapturerFactory(
	priority int,
	factory VideoCapturerFactory,
) {
	videoCapturers.register(priority, factory)
}

// VideoCapturerFactories returns the registered factories, highest priority first.
func VideoCapturerFactories() []VideoCapturerFactory {
	return videoCapturers.list()
}
