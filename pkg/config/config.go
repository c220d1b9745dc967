// Package config describes the configuration file of a capture session.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/mediacapture/pkg/capture"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
	"github.com/xaionaro-go/mediacapture/pkg/controller"
	"github.com/xaionaro-go/mediacapture/pkg/recording"
	"github.com/xaionaro-go/mediacapture/pkg/segmentrecorder"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Audio       Audio       `yaml:"audio"`
	Video       Video       `yaml:"video"`
	Segment     Segment     `yaml:"segment"`
	Permissions Permissions `yaml:"permissions"`
	Output      Output      `yaml:"output"`
}

type Audio struct {
	SampleRate       uint32        `yaml:"sample_rate"`
	Channels         uint32        `yaml:"channels"`
	Format           string        `yaml:"format"`
	EchoCancellation bool          `yaml:"echo_cancellation"`
	NoiseSuppression bool          `yaml:"noise_suppression"`
	BufferDuration   time.Duration `yaml:"buffer_duration"`
}

type Video struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	FrameRate float64 `yaml:"frame_rate"`
}

type Segment struct {
	Duration  time.Duration `yaml:"duration"`
	Gap       time.Duration `yaml:"gap"`
	Timeslice time.Duration `yaml:"timeslice"`
}

type Permissions struct {
	Camera     bool `yaml:"camera"`
	Microphone bool `yaml:"microphone"`
}

type Output struct {
	Dir      string `yaml:"dir"`
	Language string `yaml:"language"`
}

func Default() Config {
	return Config{
		Audio: Audio{
			SampleRate:       16000,
			Channels:         1,
			Format:           types.PCMFormatFloat32LE.String(),
			EchoCancellation: true,
			NoiseSuppression: true,
			BufferDuration:   capture.DefaultPCMBufferDuration,
		},
		Video: Video{
			Width:     640,
			Height:    480,
			FrameRate: 30,
		},
		Segment: Segment{
			Duration:  controller.DefaultSegmentDuration,
			Gap:       segmentrecorder.DefaultGap,
			Timeslice: recording.DefaultTimeslice,
		},
		Permissions: Permissions{
			Camera:     true,
			Microphone: true,
		},
		Output: Output{
			Language: "en",
		},
	}
}

// Parse reads YAML on top of the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unable to unmarshal the config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read '%s': %w", path, err)
	}
	return Parse(data)
}

func (cfg Config) Bytes() ([]byte, error) {
	return yaml.Marshal(cfg)
}

func (cfg Config) Validate() error {
	var mErr *multierror.Error
	if cfg.Audio.SampleRate == 0 {
		mErr = multierror.Append(mErr, fmt.Errorf("audio.sample_rate must be positive"))
	}
	if cfg.Audio.Channels == 0 {
		mErr = multierror.Append(mErr, fmt.Errorf("audio.channels must be positive"))
	}
	if _, err := types.ParsePCMFormat(cfg.Audio.Format); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("audio.format: %w", err))
	}
	if cfg.Audio.BufferDuration <= 0 {
		mErr = multierror.Append(mErr, fmt.Errorf("audio.buffer_duration must be positive"))
	}
	if cfg.Segment.Duration <= 0 {
		mErr = multierror.Append(mErr, fmt.Errorf("segment.duration must be positive"))
	}
	if cfg.Segment.Gap < 0 || cfg.Segment.Gap > segmentrecorder.MaxGap {
		mErr = multierror.Append(mErr, fmt.Errorf("segment.gap must be within [0, %s]", segmentrecorder.MaxGap))
	}
	if cfg.Segment.Timeslice < 0 {
		mErr = multierror.Append(mErr, fmt.Errorf("segment.timeslice must not be negative"))
	}
	return mErr.ErrorOrNil()
}

func (cfg Config) AudioConstraints() types.AudioConstraints {
	pcmFormat, err := types.ParsePCMFormat(cfg.Audio.Format)
	if err != nil {
		pcmFormat = types.PCMFormatFloat32LE
	}
	return types.AudioConstraints{
		SampleRate:       types.SampleRate(cfg.Audio.SampleRate),
		Channels:         types.Channel(cfg.Audio.Channels),
		PCMFormat:        pcmFormat,
		EchoCancellation: cfg.Audio.EchoCancellation,
		NoiseSuppression: cfg.Audio.NoiseSuppression,
		BufferDuration:   cfg.Audio.BufferDuration,
	}
}

func (cfg Config) VideoConstraints() types.VideoConstraints {
	return types.VideoConstraints{
		Width:     cfg.Video.Width,
		Height:    cfg.Video.Height,
		FrameRate: cfg.Video.FrameRate,
	}
}

func (cfg Config) CapturePermissions() capture.Permissions {
	return capture.Permissions{
		Camera:     cfg.Permissions.Camera,
		Microphone: cfg.Permissions.Microphone,
	}
}

func (cfg Config) ControllerConfig() controller.Config {
	return controller.Config{
		AudioConstraints: cfg.AudioConstraints(),
		VideoConstraints: cfg.VideoConstraints(),
		SegmentDuration:  cfg.Segment.Duration,
		SegmentGap:       cfg.Segment.Gap,
	}
}
