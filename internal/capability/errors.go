package capability

import "errors"

// Domain errors returned by capabilities and cell operations.
//
// Use errors.Is() to check:
//
//	if errors.Is(err, capability.ErrSensorTimeout) {
//	    // nothing reached the sensor in time
//	}
var (
	// ErrSensorTimeout is returned when the conveyor sensor does not detect
	// a piece within the configured bound.
	ErrSensorTimeout = errors.New("capability: sensor detection timed out")

	// ErrGraspFailure is returned when grip pressure shows nothing was grasped.
	ErrGraspFailure = errors.New("capability: grasp failed")

	// ErrGraspCheckTimeout is returned when the pressure read does not complete in time.
	ErrGraspCheckTimeout = errors.New("capability: grip pressure check timed out")

	// ErrPieceMismatch is returned when the detected piece is not the requested one.
	ErrPieceMismatch = errors.New("capability: piece does not match target")

	// ErrNotDetected is returned when vision finds no object.
	ErrNotDetected = errors.New("capability: no object detected")

	// ErrUnsupported is returned by a capability that lacks a primitive.
	ErrUnsupported = errors.New("capability: operation not supported")

	// ErrMissingPoint is returned when a named calibration point is absent.
	ErrMissingPoint = errors.New("capability: calibration point missing")

	// ErrInvalidPoints is returned for a malformed calibration points file.
	ErrInvalidPoints = errors.New("capability: invalid calibration points")
)
