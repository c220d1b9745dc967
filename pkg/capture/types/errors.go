package types

import (
	"errors"
	"fmt"
)

type Kind uint

const (
	KindUndefined = Kind(iota)
	KindAudio
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "<undefined>"
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return fmt.Sprintf("<unexpected_%d>", uint(k))
	}
}

type DeviceErrorReason uint

const (
	DeviceErrorReasonUndefined = DeviceErrorReason(iota)
	DeviceErrorReasonDenied
	DeviceErrorReasonUnavailable
)

func (r DeviceErrorReason) String() string {
	switch r {
	case DeviceErrorReasonUndefined:
		return "<undefined>"
	case DeviceErrorReasonDenied:
		return "denied"
	case DeviceErrorReasonUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("<unexpected_%d>", uint(r))
	}
}

var (
	ErrDenied      = errors.New("access denied")
	ErrUnavailable = errors.New("device unavailable")
)

type DeviceError struct {
	Kind   Kind
	Reason DeviceErrorReason
	Err    error
}

var _ error = (*DeviceError)(nil)

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s device: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s device: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDenied) and errors.Is(err, ErrUnavailable) work.
func (e *DeviceError) Is(target error) bool {
	switch target {
	case ErrDenied:
		return e.Reason == DeviceErrorReasonDenied
	case ErrUnavailable:
		return e.Reason == DeviceErrorReasonUnavailable
	}
	return false
}
