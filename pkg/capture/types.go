package capture

import (
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
)

type (
	AudioCapturer    = types.AudioCapturer
	VideoCapturer    = types.VideoCapturer
	CaptureStream    = types.CaptureStream
	AudioConstraints = types.AudioConstraints
	VideoConstraints = types.VideoConstraints
	AudioFormat      = types.AudioFormat
	DeviceError      = types.DeviceError
	Kind             = types.Kind
)

const (
	KindAudio = types.KindAudio
	KindVideo = types.KindVideo
)
