package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/mediacapture/pkg/capture"
	_ "github.com/xaionaro-go/mediacapture/pkg/capture/backends/portaudio"
	_ "github.com/xaionaro-go/mediacapture/pkg/capture/backends/pulseaudio"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
	"github.com/xaionaro-go/observability"
)

// record writes raw PCM from the microphone to stdout.
func main() {
	loggerLevel := logger.LevelDebug
	pflag.Var(&loggerLevel, "log-level", "Log level")
	sampleRate := pflag.Uint32("sample-rate", 48000, "")
	channels := pflag.Uint32("channels", 2, "")
	formatString := pflag.String("format", types.PCMFormatFloat32LE.String(), "")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	pcmFormat, err := types.ParsePCMFormat(*formatString)
	assertNoError(err)

	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt)
	defer cancelFn()

	logger.Infof(ctx, "starting...")
	acquisition := capture.NewDeviceAcquisition(capture.NewAudioCapturerAuto(ctx), nil, capture.PermitAll())
	defer acquisition.Close()

	stream, err := acquisition.AcquireAudio(ctx, types.AudioConstraints{
		SampleRate:     types.SampleRate(*sampleRate),
		Channels:       types.Channel(*channels),
		PCMFormat:      pcmFormat,
		BufferDuration: capture.DefaultPCMBufferDuration,
	})
	assertNoError(err)
	defer func() {
		assertNoError(acquisition.Release(ctx, stream))
	}()

	wc := datacounter.NewWriterCounter(os.Stdout)
	observability.Go(ctx, func(ctx context.Context) {
		logger.Tracef(ctx, "started the traffic count printer loop")
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				logger.Debugf(ctx, "captured: %d; written: %d", stream.BytesCaptured(), wc.Count())
			}
		}
	})

	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := wc.Write(stream.TakePCM()); err != nil {
				logger.Errorf(ctx, "unable to write: %v", err)
				return
			}
		}
	}
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
