package portaudio

import (
	"github.com/xaionaro-go/mediacapture/pkg/capture/registry"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
)

const (
	Priority = 60
)

func init() {
	registry.RegisterAudioCapturerFactory(Priority, AudioCapturerFactory{})
}

type AudioCapturerFactory struct{}

func (AudioCapturerFactory) NewAudioCapturer() (types.AudioCapturer, error) {
	return NewAudioCapturer()
}
