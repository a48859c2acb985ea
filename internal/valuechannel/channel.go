package valuechannel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors.
var (
	// ErrTimeout is returned when no value arrives before the context ends.
	ErrTimeout = errors.New("valuechannel: read timed out")

	// ErrInvalidValue is returned when a stored value cannot be decoded.
	ErrInvalidValue = errors.New("valuechannel: invalid value")

	// ErrInvalidAddress is returned for addresses with empty parts or separators.
	ErrInvalidAddress = errors.New("valuechannel: invalid address")
)

// Address names one remote value.
type Address struct {
	Namespace string
	Object    string
	Name      string
}

// String returns namespace/object/name.
func (a Address) String() string {
	return a.Namespace + "/" + a.Object + "/" + a.Name
}

// Validate rejects empty parts and parts containing MQTT separators.
func (a Address) Validate() error {
	for _, part := range []string{a.Namespace, a.Object, a.Name} {
		if part == "" || strings.ContainsAny(part, "/+#") {
			return fmt.Errorf("%w: %q", ErrInvalidAddress, a.String())
		}
	}
	return nil
}

// Channel reads and writes remote values. Numeric values and blobs are
// independent: writing one never affects another address.
type Channel interface {
	ReadFloat(ctx context.Context, addr Address) (float64, error)
	WriteFloat(ctx context.Context, addr Address, v float64) error
	ReadBlob(ctx context.Context, addr Address) ([]byte, error)
	WriteBlob(ctx context.Context, addr Address, data []byte) error
}

func encodeFloat(v float64) []byte {
	return []byte(strconv.FormatFloat(v, 'g', -1, 64))
}

func decodeFloat(addr Address, data []byte) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidValue, addr, err)
	}
	return v, nil
}

func timeoutError(ctx context.Context, addr Address) error {
	return fmt.Errorf("%w: %s: %w", ErrTimeout, addr, ctx.Err())
}
