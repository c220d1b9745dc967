package controller

import (
	"github.com/xaionaro-go/mediacapture/pkg/capture"
	"github.com/xaionaro-go/mediacapture/pkg/segmentrecorder"
)

// CaptureSession is the state of a Controller.
type CaptureSession struct {
	CameraEnabled    bool
	MicEnabled       bool
	CameraStream     *capture.Stream
	MicrophoneStream *capture.Stream
	RecorderState    segmentrecorder.State

	// SessionEpoch is incremented on teardown; continuations scheduled
	// with an older epoch are dropped.
	SessionEpoch uint64
	Terminated   bool
}
