// Package influxdb writes Runchain time series to InfluxDB v2.
//
// Measurements:
//   - service_execution: one point per gated service call (device, service, status, duration)
//   - grip_pressure: pressure readings taken after a grasp
//   - sensor_detection: convey-until-detect outcomes (ir_detection 0/1)
//   - motion_trace: calibration points visited by each arm
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // time series are optional
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { logger.Warn("influx write failed", "error", err) })
package influxdb
