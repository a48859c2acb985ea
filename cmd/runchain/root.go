package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nothineazi/robotic-chain-control/internal/infrastructure/config"
	"github.com/nothineazi/robotic-chain-control/internal/infrastructure/logging"
)

// cli holds the flags shared by every command.
type cli struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "runchain",
		Short: "Runchain drives a two-cell robotic build line",
		Long: `Runchain gates every robot action on the device's service registry,
records each execution and sequences builds across the vision and
conveyor cells.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", getConfigPath(), "configuration file (env RUNCHAIN_CONFIG)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		c.serveCmd(),
		c.registryCmd(),
		c.stateCmd(),
		c.buildCmd(),
		c.pickReplaceCmd(),
		c.visionTestCmd(),
		c.feedCmd(),
	)
	return root
}

// load reads the configuration and builds the logger.
func (c *cli) load() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	return cfg, logging.New(cfg.Logging, version), nil
}

// printJSON writes v indented to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withLine loads the configuration, opens the line and runs fn.
func (c *cli) withLine(cmd *cobra.Command, fn func(l *line) error) error {
	cfg, log, err := c.load()
	if err != nil {
		return err
	}
	l, err := openLine(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer l.Close()
	return fn(l)
}
