package mediadevices

import (
	"github.com/xaionaro-go/mediacapture/pkg/capture/registry"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
)

const (
	Priority = 100
)

func init() {
	registry.RegisterVideoCapturerFactory(Priority, VideoCapturerFactory{})
}

type VideoCapturerFactory struct{}

func (VideoCapturerFactory) NewVideoCapturer() (types.VideoCapturer, error) {
	return NewVideoCapturer(), nil
}
