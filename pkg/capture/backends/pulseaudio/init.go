package pulseaudio

import (
	"github.com/xaionaro-go/mediacapture/pkg/capture/registry"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
)

const (
	Priority = 100
)

func init() {
	registry.RegisterAudioCapturerFactory(Priority, AudioCapturerFactory{})
}

type AudioCapturerFactory struct{}

func (AudioCapturerFactory) NewAudioCapturer() (types.AudioCapturer, error) {
	return NewAudioCapturer()
}
