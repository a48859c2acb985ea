package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by Runchain.
const (
	MeasurementExecution = "service_execution"
	MeasurementPressure  = "grip_pressure"
	MeasurementSensor    = "sensor_detection"
	MeasurementMotion    = "motion_trace"
)

// WriteExecution records the outcome and duration of one gated service call.
func (c *Client) WriteExecution(deviceID, service string, success bool, duration time.Duration, at time.Time) {
	status := "failure"
	if success {
		status = "success"
	}
	c.WritePointAt(MeasurementExecution,
		map[string]string{"device_id": deviceID, "service": service, "status": status},
		map[string]any{"duration_s": duration.Seconds(), "success": success},
		at)
}

// WriteGripPressure records a grip pressure reading and the verdict against
// the device threshold.
func (c *Client) WriteGripPressure(deviceID string, pressure, threshold float64, held bool) {
	c.WritePoint(MeasurementPressure,
		map[string]string{"device_id": deviceID},
		map[string]any{"pressure": pressure, "threshold": threshold, "held": held})
}

// WriteSensorDetection records a convey-until-detect outcome. detected is
// written as 0/1 to match the ir_detection trace.
func (c *Client) WriteSensorDetection(deviceID, pin string, detected bool, waited time.Duration) {
	v := 0
	if detected {
		v = 1
	}
	c.WritePoint(MeasurementSensor,
		map[string]string{"device_id": deviceID, "pin": pin},
		map[string]any{"ir_detection": v, "waited_s": waited.Seconds()})
}

// WriteMotion records a visit to a named calibration point.
func (c *Client) WriteMotion(deviceID, point string, axes map[string]float64) {
	fields := make(map[string]any, len(axes))
	for k, v := range axes {
		fields[k] = v
	}
	if len(fields) == 0 {
		fields["visited"] = true
	}
	c.WritePoint(MeasurementMotion,
		map[string]string{"device_id": deviceID, "point": point},
		fields)
}

// WritePoint writes a custom point stamped now.
//
// Example:
//
//	client.WritePoint("line_stats",
//	    map[string]string{"site": "line-001"},
//	    map[string]any{"builds": 3})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointAt(measurement, tags, fields, time.Now())
}

// WritePointAt writes a custom point with an explicit timestamp.
func (c *Client) WritePointAt(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
