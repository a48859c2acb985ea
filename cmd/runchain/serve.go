package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nothineazi/robotic-chain-control/internal/api"
	"github.com/nothineazi/robotic-chain-control/internal/infrastructure/mqtt"
	"github.com/nothineazi/robotic-chain-control/internal/registry"
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control API and registry watchers until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := c.load()
			if err != nil {
				return err
			}
			log.Info("starting Runchain",
				"version", version,
				"commit", commit,
				"build_date", date,
				"config", c.configPath,
			)
			l, err := openLine(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer l.Close()
			return serve(cmd.Context(), l)
		},
	}
}

// serve runs until ctx is cancelled or a component fails.
func serve(ctx context.Context, l *line) error {
	log := l.log
	g, ctx := errgroup.WithContext(ctx)

	for _, id := range l.order {
		st := l.stations[id]
		if !st.cfg.WatchRegistry {
			continue
		}
		deviceLog := log.With("device_id", id)
		if err := st.registry.Watch(ctx, registry.DefaultDebounce, func(changed bool, err error) {
			switch {
			case err != nil:
				deviceLog.Error("registry document unusable", "error", err)
			case changed:
				deviceLog.Info("registry document reloaded")
			}
		}); err != nil {
			return fmt.Errorf("watching registry of %s: %w", id, err)
		}
		deviceLog.Info("watching registry document", "path", st.registry.Path())
	}

	if l.cfg.API.Enabled {
		srv, err := newAPIServer(l)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		g.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
	}

	if l.mqtt != nil {
		publishStatus(l, "online")
		defer publishStatus(l, "offline")
	}

	log.Info("initialisation complete, waiting for shutdown signal", "devices", len(l.order))
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutdown signal received, cleaning up")
		return nil
	})

	err := g.Wait()
	log.Info("Runchain stopped")
	return err
}

func newAPIServer(l *line) (*api.Server, error) {
	deps := api.Deps{
		Config:    l.cfg.API,
		Logger:    l.log,
		Stations:  l.apiStations(),
		Services:  l.services(),
		Sequencer: l.sequencer,
		NewBuild:  l.newBuild,
		PreDelay:  l.cfg.Workflow.PreDelay,
		Version:   version,
	}
	if l.executions != nil {
		deps.Executions = l.executions
		deps.History = l.tasks
	}
	if l.db != nil {
		deps.DB = l.db.DB
	}
	if l.mqtt != nil {
		deps.MQTT = l.mqtt
	}
	if l.influx != nil {
		deps.InfluxDB = l.influx
	}
	if l.metrics != nil {
		deps.Gatherer = l.metrics
	}
	return api.New(deps)
}

type systemStatus struct {
	Status    string `json:"status"`
	Site      string `json:"site"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

func publishStatus(l *line, status string) {
	err := l.mqtt.PublishJSON(mqtt.Topics{}.SystemStatus(), systemStatus{
		Status:    status,
		Site:      l.cfg.Site.ID,
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, true)
	if err != nil {
		l.log.Warn("publishing system status", "status", status, "error", err)
	}
}

