// Package workflow sequences gated steps across one or two devices.
//
// Two shapes of workflow exist:
//
//   - Linear runs a fixed list of steps in order on one device. The first
//     unavailable service aborts it; other failures continue unless the
//     step is marked AbortOnFailure.
//   - Build places an ordered list of targets. For each target it repeats
//     load, convey and classify-and-place until the piece matches, then
//     hands off to the second device with one gated conveyor move.
//
// Builds run in the background through a Sequencer, which hands out a Task
// for join and cancel and allows one build per device at a time.
package workflow
