package device

import "errors"

// Domain errors for gated execution.
//
// Use errors.Is() to check:
//
//	if errors.Is(res.Err, device.ErrServiceUnavailable) {
//	    // the registry does not list the service
//	}
var (
	// ErrServiceUnavailable is returned when the service is not in the
	// registry or the registry cannot be read. It wraps the registry cause.
	ErrServiceUnavailable = errors.New("device: service unavailable")

	// ErrDeviceFaulted is returned while the device is in the Error state.
	ErrDeviceFaulted = errors.New("device: device is faulted")

	// ErrDeviceBusy is returned when a gate finds the device already Active.
	ErrDeviceBusy = errors.New("device: device is busy")

	// ErrActionPanic is returned when a gated action panics.
	ErrActionPanic = errors.New("device: action panicked")

	// ErrInvalidConfig is returned by New for incomplete configuration.
	ErrInvalidConfig = errors.New("device: invalid configuration")
)
