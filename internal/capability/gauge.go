package capability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nothineazi/robotic-chain-control/internal/valuechannel"
)

// PressureGauge reads grip pressure from the remote value channel.
type PressureGauge struct {
	ch      valuechannel.Channel
	addr    valuechannel.Address
	timeout time.Duration
}

// NewPressureGauge reads addr through ch, bounding each read by timeout.
func NewPressureGauge(ch valuechannel.Channel, addr valuechannel.Address, timeout time.Duration) *PressureGauge {
	return &PressureGauge{ch: ch, addr: addr, timeout: timeout}
}

// CheckGripPressure performs one awaited read. Expiry of the gauge timeout
// yields ErrGraspCheckTimeout; cancellation of ctx is returned as is.
func (g *PressureGauge) CheckGripPressure(ctx context.Context) (float64, error) {
	readCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	v, err := g.ch.ReadFloat(readCtx, g.addr)
	if err == nil {
		return v, nil
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if errors.Is(err, valuechannel.ErrTimeout) {
		return 0, fmt.Errorf("%w: %s after %s", ErrGraspCheckTimeout, g.addr, g.timeout)
	}
	return 0, fmt.Errorf("reading grip pressure: %w", err)
}
