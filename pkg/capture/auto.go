package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/mediacapture/pkg/capture/registry"
	"github.com/xaionaro-go/mediacapture/pkg/capture/types"
)

var (
	lastSuccessfulAudioCapturerFactory       registry.AudioCapturerFactory
	lastSuccessfulAudioCapturerFactoryLocker sync.Mutex

	lastSuccessfulVideoCapturerFactory       registry.VideoCapturerFactory
	lastSuccessfulVideoCapturerFactoryLocker sync.Mutex
)

func getLastSuccessfulAudioCapturerFactory() registry.AudioCapturerFactory {
	lastSuccessfulAudioCapturerFactoryLocker.Lock()
	defer lastSuccessfulAudioCapturerFactoryLocker.Unlock()
	return lastSuccessfulAudioCapturerFactory
}

func getLastSuccessfulVideoCapturerFactory() registry.VideoCapturerFactory {
	lastSuccessfulVideoCapturerFactoryLocker.Lock()
	defer lastSuccessfulVideoCapturerFactoryLocker.Unlock()
	return lastSuccessfulVideoCapturerFactory
}

// NewAudioCapturerAuto returns the first registered audio capturer that
// responds to Ping. If none does, the result fails every acquisition as
// unavailable.
func NewAudioCapturerAuto(
	ctx context.Context,
) types.AudioCapturer {
	if factory := getLastSuccessfulAudioCapturerFactory(); factory != nil {
		capturer, err := factory.NewAudioCapturer()
		if err == nil {
			if err := capturer.Ping(ctx); err == nil {
				return capturer
			}
			_ = capturer.Close()
		}
	}

	var mErr *multierror.Error
	for _, factory := range registry.AudioCapturerFactories() {
		capturer, err := factory.NewAudioCapturer()
		logger.Debugf(ctx, "initializing audio capturer %T result is %v", factory, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to initialize %T: %w", factory, err))
			continue
		}

		err = capturer.Ping(ctx)
		logger.Debugf(ctx, "pinging audio capturer %T result is %v", capturer, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to ping %T: %w", capturer, err))
			_ = capturer.Close()
			continue
		}

		lastSuccessfulAudioCapturerFactoryLocker.Lock()
		lastSuccessfulAudioCapturerFactory = factory
		lastSuccessfulAudioCapturerFactoryLocker.Unlock()
		return capturer
	}

	logger.Infof(ctx, "was unable to initialize any audio capturer: %v", mErr.ErrorOrNil())
	return AudioCapturerUnavailable{Err: mErr.ErrorOrNil()}
}

// NewVideoCapturerAuto is the video counterpart of NewAudioCapturerAuto.
func NewVideoCapturerAuto(
	ctx context.Context,
) types.VideoCapturer {
	if factory := getLastSuccessfulVideoCapturerFactory(); factory != nil {
		capturer, err := factory.NewVideoCapturer()
		if err == nil {
			if err := capturer.Ping(ctx); err == nil {
				return capturer
			}
			_ = capturer.Close()
		}
	}

	var mErr *multierror.Error
	for _, factory := range registry.VideoCapturerFactories() {
		capturer, err := factory.NewVideoCapturer()
		logger.Debugf(ctx, "initializing video capturer %T result is %v", factory, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to initialize %T: %w", factory, err))
			continue
		}

		err = capturer.Ping(ctx)
		logger.Debugf(ctx, "pinging video capturer %T result is %v", capturer, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to ping %T: %w", capturer, err))
			_ = capturer.Close()
			continue
		}

		lastSuccessfulVideoCapturerFactoryLocker.Lock()
		lastSuccessfulVideoCapturerFactory = factory
		lastSuccessfulVideoCapturerFactoryLocker.Unlock()
		return capturer
	}

	logger.Infof(ctx, "was unable to initialize any video capturer: %v", mErr.ErrorOrNil())
	return VideoCapturerUnavailable{Err: mErr.ErrorOrNil()}
}
