// Package cell implements the operations of the two work-cells over their
// capabilities.
//
// VisionCell is the arm with a camera, a conveyor and a presence sensor: it
// loads raw pieces onto the conveyor, waits for them at the sensor,
// classifies them and places matches on the build. ConveyorCell is the
// second arm: it picks pieces from a joint-angle table, releases them onto
// the first cell's ramp and advances the shared conveyor.
//
// Cell operations are ungated. Workflows run them inside device.Gate.
package cell
