// Package execlog records the outcome of every gated service action.
//
// A Recorder stamps each Record with an ID and timestamp, fans it out to its
// sinks and writes the same information to the operator log. Sinks:
//
//   - FileSink appends the fixed-format text line to the execution log file
//   - SQLiteRepository mirrors records into the execution_records table
//   - Metrics exports Prometheus counters and duration histograms
//   - InfluxSink writes the service_execution time series
//   - PublishSink emits the record as a JSON event over MQTT
//   - MemorySink keeps records in memory (tests and the simulator)
//
// The log is append-only. A sink failure is returned from Record and logged,
// it never stops the caller.
package execlog
