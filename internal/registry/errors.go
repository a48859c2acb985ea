package registry

import "errors"

// Domain errors for the registry package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, registry.ErrNotFound) {
//	    // service is not configured on this device
//	}
var (
	// ErrNotFound is returned when a service name is absent from the document.
	ErrNotFound = errors.New("registry: service not found")

	// ErrParse is returned while the persisted document cannot be parsed.
	ErrParse = errors.New("registry: malformed document")

	// ErrInvalidState is returned when a state name is not Idle, Active or Error.
	ErrInvalidState = errors.New("registry: invalid state")

	// ErrServiceExists is returned when adding a service whose name is taken.
	ErrServiceExists = errors.New("registry: service already exists")

	// ErrInvalidService is returned when a descriptor has an empty name.
	ErrInvalidService = errors.New("registry: invalid service")

	// ErrDocumentInUse is returned when a second Store is opened on the same path.
	ErrDocumentInUse = errors.New("registry: document already open")

	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("registry: store closed")
)
