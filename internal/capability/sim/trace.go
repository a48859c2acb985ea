package sim

import (
	"sync"
	"time"

	"github.com/nothineazi/robotic-chain-control/internal/capability"
)

// Trace records tracer calls.
type Trace struct {
	mu         sync.Mutex
	Points     []string
	Detections []bool
	Pressures  []float64
}

// TracePoint implements capability.Tracer.
func (t *Trace) TracePoint(_, point string, _ capability.Pose) {
	t.mu.Lock()
	t.Points = append(t.Points, point)
	t.mu.Unlock()
}

// TraceDetection implements capability.Tracer.
func (t *Trace) TraceDetection(_, _ string, detected bool, _ time.Duration) {
	t.mu.Lock()
	t.Detections = append(t.Detections, detected)
	t.mu.Unlock()
}

// TracePressure implements capability.Tracer.
func (t *Trace) TracePressure(_ string, pressure, _ float64, _ bool) {
	t.mu.Lock()
	t.Pressures = append(t.Pressures, pressure)
	t.mu.Unlock()
}

// Snapshot returns copies of the recorded traces.
func (t *Trace) Snapshot() (points []string, detections []bool, pressures []float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.Points...),
		append([]bool(nil), t.Detections...),
		append([]float64(nil), t.Pressures...)
}
