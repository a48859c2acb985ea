package workflow

import "errors"

// Domain errors for workflows.
var (
	// ErrBuildInProgress is returned when a device already runs a build.
	ErrBuildInProgress = errors.New("workflow: build already in progress")

	// ErrInvalidTargets is returned for a malformed targets file.
	ErrInvalidTargets = errors.New("workflow: invalid targets")

	// ErrInvalidBuild is returned when a build cannot start as configured.
	ErrInvalidBuild = errors.New("workflow: invalid build")

	// ErrMaxAttempts is returned when a target is not placed within the
	// configured attempt cap.
	ErrMaxAttempts = errors.New("workflow: attempt limit reached")

	// ErrShutdown is returned by a sequencer that is shutting down.
	ErrShutdown = errors.New("workflow: sequencer shut down")

	// ErrTaskNotFound is returned for an unknown task ID.
	ErrTaskNotFound = errors.New("workflow: task not found")
)
