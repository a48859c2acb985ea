// Runchain drives a two-cell robotic line: a vision arm that builds pieces
// onto slots and a conveyor arm that receives the finished build.
//
// Every robot action is gated on the device's service registry document,
// recorded in the execution log and mirrored to SQLite, Prometheus,
// InfluxDB and MQTT when those are enabled.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the CLI with args, separated from main for testability.
func run(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// getConfigPath returns the configuration file path.
// Checks RUNCHAIN_CONFIG environment variable first, then uses default.
func getConfigPath() string {
	if path := os.Getenv("RUNCHAIN_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
