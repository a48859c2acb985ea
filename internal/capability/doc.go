// Package capability defines the hardware primitives a work-cell exposes to
// the core: arm motion and grasp, conveyor control, the digital presence
// sensor, object detection and the grip-pressure check.
//
// The core only ever talks to these interfaces. Package sim provides a
// simulated implementation; physical drivers live outside this module.
//
// The package also carries the calibration points parser, the pressure
// gauge that reads grip pressure over the remote value channel, and the
// motion/detection tracer.
package capability
