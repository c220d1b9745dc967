package registry

import (
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
)

type AudioCapturerFactory interface {
	NewAudioCapturer() (types.AudioCapturer, error)
}

var audioCapturers registry[AudioCapturerFactory]

func RegisterAudioCapturerFactory(
	priority int,
	factory AudioCapturerFactory,
) {
	audioCapturers.register(priority, factory)
}

// AudioCapturerFactories returns the registered factories, highest priority first.
func AudioCapturerFactories() []AudioCapturerFactory {
	return audioCapturers.list()
}
