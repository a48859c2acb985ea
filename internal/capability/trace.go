package capability

import "time"

// Tracer records where a device went and what it sensed.
type Tracer interface {
	TracePoint(deviceID, point string, pose Pose)
	TraceDetection(deviceID, pin string, detected bool, waited time.Duration)
	TracePressure(deviceID string, pressure, threshold float64, held bool)
}

// NopTracer discards traces.
type NopTracer struct{}

// TracePoint implements Tracer.
func (NopTracer) TracePoint(string, string, Pose) {}

// TraceDetection implements Tracer.
func (NopTracer) TraceDetection(string, string, bool, time.Duration) {}

// TracePressure implements Tracer.
func (NopTracer) TracePressure(string, float64, float64, bool) {}

// SeriesWriter is the time series surface used by SeriesTracer.
// *influxdb.Client satisfies it.
type SeriesWriter interface {
	WriteMotion(deviceID, point string, axes map[string]float64)
	WriteSensorDetection(deviceID, pin string, detected bool, waited time.Duration)
	WriteGripPressure(deviceID string, pressure, threshold float64, held bool)
}

// SeriesTracer writes traces as time series points.
type SeriesTracer struct {
	w SeriesWriter
}

// NewSeriesTracer wraps w.
func NewSeriesTracer(w SeriesWriter) *SeriesTracer {
	return &SeriesTracer{w: w}
}

// TracePoint implements Tracer.
func (t *SeriesTracer) TracePoint(deviceID, point string, pose Pose) {
	t.w.WriteMotion(deviceID, point, pose.Axes())
}

// TraceDetection implements Tracer.
func (t *SeriesTracer) TraceDetection(deviceID, pin string, detected bool, waited time.Duration) {
	t.w.WriteSensorDetection(deviceID, pin, detected, waited)
}

// TracePressure implements Tracer.
func (t *SeriesTracer) TracePressure(deviceID string, pressure, threshold float64, held bool) {
	t.w.WriteGripPressure(deviceID, pressure, threshold, held)
}
