// Package valuechannel is the remote value contract used by the cells.
//
// Values are addressed by namespace, owning object and name, mirroring the
// vPLC layout of the line controller ("mynamespace" / "vPLC" / "pression").
// Two kinds of value travel over the channel: numeric readings such as grip
// pressure, and binary blobs such as registry documents.
//
// Implementations:
//   - MQTT stores each value as a retained message on
//     runchain/value/{namespace}/{object}/{name}
//   - Memory keeps values in process, for tests and the simulator
//
// Reads block until a value is available or the context ends.
package valuechannel
