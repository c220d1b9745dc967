package pulseaudio

import (
	"fmt"

	"github.com/jfreymuth/pulse"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
)

type CaptureStream struct {
	*pulse.Client
	*pulse.RecordStream
}

var _ types.CaptureStream = (*CaptureStream)(nil)

func newCaptureStream(
	client *pulse.Client,
	pulseStream *pulse.RecordStream,
) *CaptureStream {
	return &CaptureStream{
		Client:       client,
		RecordStream: pulseStream,
	}
}

func (stream *CaptureStream) Close() (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("got a panic: %v", r)
		}
	}()
	stream.RecordStream.Stop()
	stream.RecordStream.Close()
	stream.Client.Close()
	if stream.RecordStream.Error() != nil {
		return fmt.Errorf("the record stream reported an error: %w", stream.RecordStream.Error())
	}
	return nil
}
