package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	xlogrus "github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/mediacapture/pkg/capture"
	_ "github.com/xaionaro-go/mediacapture/pkg/capture/backends/mediadevices"
	_ "github.com/xaionaro-go/mediacapture/pkg/capture/backends/portaudio"
	_ "github.com/xaionaro-go/mediacapture/pkg/capture/backends/pulseaudio"
	"github.com/xaionaro-go/mediacapture/pkg/config"
	"github.com/xaionaro-go/mediacapture/pkg/controller"
	"github.com/xaionaro-go/mediacapture/pkg/eventloop"
	"github.com/xaionaro-go/mediacapture/pkg/recording"
	"github.com/xaionaro-go/mediacapture/pkg/sink"
	"github.com/xaionaro-go/mediacapture/pkg/timer"
	"github.com/xaionaro-go/observability"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "path to a YAML config file")
	logFile := pflag.String("log-file", "", "also write the logs into this file (rotated)")
	segmentDuration := pflag.Duration("segment-duration", 0, "override the duration of a recorded segment")
	outputDir := pflag.String("output-dir", "", "write every segment as a WAV file into this directory")
	language := pflag.String("language", "", "language code attached to the written segments")
	pflag.Parse()

	ll := xlogrus.DefaultLogrusLogger()
	ll.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if *logFile != "" {
		ll.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   *logFile,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		}))
	}
	l := xlogrus.New(ll).WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		assertNoError(err)
	}
	if *segmentDuration != 0 {
		cfg.Segment.Duration = *segmentDuration
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *language != "" {
		cfg.Output.Language = *language
	}
	assertNoError(cfg.Validate())

	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	acquisition := capture.NewDeviceAcquisition(
		capture.NewAudioCapturerAuto(ctx),
		capture.NewVideoCapturerAuto(ctx),
		cfg.CapturePermissions(),
	)
	defer func() {
		if err := acquisition.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the capturers: %v", err)
		}
	}()

	sinks := controller.EventSinks{sink.NewMessages(os.Stdout)}
	if cfg.Output.Dir != "" {
		wavFiles, err := sink.NewWAVFiles(ctx, cfg.Output.Dir, cfg.Output.Language)
		assertNoError(err)
		defer wavFiles.Close()
		sinks = append(sinks, wavFiles)
	}

	loop := eventloop.NewQueue()
	ctrl := controller.New(
		cfg.ControllerConfig(),
		loop,
		timer.System{},
		acquisition,
		recording.PCMRecorderFactory(cfg.Segment.Timeslice),
		sinks,
		controller.ShutdownerFunc(func(context.Context) error {
			cancelFn()
			return nil
		}),
	)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	observability.Go(ctx, func(ctx context.Context) {
		select {
		case <-ctx.Done():
		case sig := <-signalCh:
			logger.Infof(ctx, "received signal %v", sig)
			ctrl.EndSession(ctx)
		}
	})
	observability.Go(ctx, func(ctx context.Context) {
		readCommands(ctx, os.Stdin, ctrl)
	})

	fmt.Println("commands: camera, mic, status, quit")
	err := loop.Run(ctx)
	logger.Debugf(ctx, "the loop is finished: %v", err)
}

func readCommands(
	ctx context.Context,
	input io.Reader,
	ctrl *controller.Controller,
) {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		switch cmd := strings.TrimSpace(scanner.Text()); cmd {
		case "":
		case "camera", "c":
			ctrl.ToggleCamera(ctx)
		case "mic", "m":
			ctrl.ToggleMicrophone(ctx)
		case "status", "s":
			session, err := ctrl.Session(ctx)
			if err != nil {
				logger.Errorf(ctx, "%v", err)
				continue
			}
			fmt.Printf("camera:%t microphone:%t recorder:%s epoch:%d\n",
				session.CameraEnabled, session.MicEnabled, session.RecorderState, session.SessionEpoch)
		case "quit", "q":
			ctrl.EndSession(ctx)
			return
		default:
			fmt.Printf("unknown command '%s'\n", cmd)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Errorf(ctx, "unable to read the commands: %v", err)
	}
	ctrl.EndSession(ctx)
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
