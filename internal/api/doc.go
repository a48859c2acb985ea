// Package api implements the HTTP control API of Runchain.
//
// This package provides:
//   - Device endpoints: operational state read and write per device
//   - Registry endpoints: list, query, add, configure and remove services
//   - Execution history from the SQLite execution log mirror
//   - Build tasks: start, list, inspect and cancel background builds
//   - Linear workflows (pick-replace, vision-test, feed) run synchronously
//   - System metrics as JSON and Prometheus collectors on /metrics
//
// # Graceful Degradation
//
// Execution history, build history, MQTT and InfluxDB are optional. A missing
// component turns its endpoints into 503 responses; the rest keeps working.
package api
