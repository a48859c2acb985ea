// Package config handles loading and validating Runchain configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with RUNCHAIN_* environment variables
//   - Per-device defaults (sensor timeout, pressure threshold, log path)
//   - Validation of required fields and unique registry paths
//
// Credentials (MQTT password, InfluxDB token) should be set via environment
// variables rather than the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dev, ok := cfg.Device("ned2")
package config
