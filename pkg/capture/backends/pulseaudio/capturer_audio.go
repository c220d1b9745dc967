package pulseaudio

import (
	"context"
	"fmt"
	"io"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
)

const (
	clientName = "mediacapture"
)

type AudioCapturer struct {
	PulseClient *pulse.Client
}

var _ types.AudioCapturer = (*AudioCapturer)(nil)

func NewAudioCapturer() (*AudioCapturer, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName(clientName))
	if err != nil {
		return nil, fmt.Errorf("unable to open a client to Pulse: %w", err)
	}
	return &AudioCapturer{
		PulseClient: c,
	}, nil
}

func (c *AudioCapturer) Close() error {
	c.PulseClient.Close()
	return nil
}

func (c *AudioCapturer) Ping(context.Context) error {
	_, err := c.PulseClient.DefaultSource()
	return err
}

func (c *AudioCapturer) CapturePCM(
	ctx context.Context,
	constraints types.AudioConstraints,
	rawWriter io.Writer,
) (_ types.CaptureStream, _err error) {
	logger.Debugf(ctx, "CapturePCM(%#+v)", constraints)
	defer func() { logger.Debugf(ctx, "/CapturePCM(%#+v): %v", constraints, _err) }()

	if constraints.EchoCancellation || constraints.NoiseSuppression {
		// Pulse applies these only if the source is a module-echo-cancel one.
		logger.Debugf(ctx, "echo cancellation and noise suppression are left to the PulseAudio source configuration")
	}

	writer, err := newPulseWriter(constraints.PCMFormat, rawWriter)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a writer for Pulse: %w", err)
	}

	chanMap := proto.ChannelMap{proto.ChannelMono}
	switch constraints.Channels {
	case 1:
	case 2:
		chanMap = proto.ChannelMap{proto.ChannelLeft, proto.ChannelRight}
	default:
		return nil, fmt.Errorf("do not know how to configure %d channels", constraints.Channels)
	}

	// A separate client per stream: closing the stream closes its client.
	client, err := pulse.NewClient(pulse.ClientApplicationName(clientName))
	if err != nil {
		return nil, fmt.Errorf("unable to open a client to Pulse: %w", err)
	}

	stream, err := client.NewRecord(
		writer,
		pulse.RecordSampleRate(int(constraints.SampleRate)),
		pulse.RecordChannels(chanMap),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to initialize a record stream: %w", err)
	}

	stream.Start()
	if stream.Error() != nil {
		err := stream.Error()
		stream.Close()
		client.Close()
		return nil, fmt.Errorf("an error occurred while starting the record stream: %w", err)
	}

	return newCaptureStream(client, stream), nil
}

type pulseWriter struct {
	pulseFormat byte
	io.Writer
}

func newPulseWriter(pcmFormat types.PCMFormat, writer io.Writer) (*pulseWriter, error) {
	var pulseFormat byte
	switch pcmFormat {
	case types.PCMFormatFloat32LE:
		pulseFormat = proto.FormatFloat32LE
	case types.PCMFormatS16LE:
		pulseFormat = proto.FormatInt16LE
	default:
		return nil, fmt.Errorf("received an unexpected format: %v", pcmFormat)
	}
	return &pulseWriter{
		pulseFormat: pulseFormat,
		Writer:      writer,
	}, nil
}

var _ pulse.Writer = (*pulseWriter)(nil)

func (w pulseWriter) Format() byte {
	return w.pulseFormat
}
