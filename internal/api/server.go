package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nothineazi/robotic-chain-control/internal/device"
	"github.com/nothineazi/robotic-chain-control/internal/execlog"
	"github.com/nothineazi/robotic-chain-control/internal/infrastructure/config"
	"github.com/nothineazi/robotic-chain-control/internal/infrastructure/logging"
	"github.com/nothineazi/robotic-chain-control/internal/registry"
	"github.com/nothineazi/robotic-chain-control/internal/workflow"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Station is one device the API can drive.
type Station struct {
	Device   *device.Device
	Registry *registry.Store

	// Vision and Feeder are the cell operations of the device. Either may
	// be nil; the workflows needing it then answer 409.
	Vision workflow.VisionOps
	Feeder workflow.FeederOps
}

// ConnectionChecker reports a connection state. *mqtt.Client and
// *influxdb.Client satisfy it.
type ConnectionChecker interface {
	IsConnected() bool
}

// TaskHistory lists persisted build tasks.
type TaskHistory interface {
	ListTasks(ctx context.Context, deviceID string, limit int) ([]workflow.TaskInfo, error)
}

// BuildFactory assembles the configured line for a list of targets.
type BuildFactory func(targets []workflow.Target) (*workflow.Build, error)

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Stations []*Station
	Services workflow.Services

	Sequencer *workflow.Sequencer
	NewBuild  BuildFactory
	PreDelay  time.Duration

	// Optional.
	Executions execlog.Repository
	History    TaskHistory
	DB         *sql.DB
	MQTT       ConnectionChecker
	InfluxDB   ConnectionChecker
	Gatherer   prometheus.Gatherer

	Version string
}

// Server is the HTTP API server for Runchain.
//
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	stations  map[string]*Station
	order     []string
	services  workflow.Services
	sequencer *workflow.Sequencer
	newBuild  BuildFactory
	preDelay  time.Duration

	executions execlog.Repository
	history    TaskHistory
	db         *sql.DB
	mqtt       ConnectionChecker
	influx     ConnectionChecker
	gatherer   prometheus.Gatherer

	version   string
	startTime time.Time
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if len(deps.Stations) == 0 {
		return nil, fmt.Errorf("at least one device is required")
	}
	if deps.Sequencer == nil {
		return nil, fmt.Errorf("sequencer is required")
	}

	s := &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		stations:   make(map[string]*Station, len(deps.Stations)),
		services:   deps.Services,
		sequencer:  deps.Sequencer,
		newBuild:   deps.NewBuild,
		preDelay:   deps.PreDelay,
		executions: deps.Executions,
		history:    deps.History,
		db:         deps.DB,
		mqtt:       deps.MQTT,
		influx:     deps.InfluxDB,
		gatherer:   deps.Gatherer,
		version:    deps.Version,
		startTime:  time.Now(),
	}
	if s.services == (workflow.Services{}) {
		s.services = workflow.DefaultServices()
	}
	for _, st := range deps.Stations {
		if st == nil || st.Device == nil || st.Registry == nil {
			return nil, fmt.Errorf("device and registry are required for every station")
		}
		id := st.Device.ID()
		if _, dup := s.stations[id]; dup {
			return nil, fmt.Errorf("duplicate device %q", id)
		}
		s.stations[id] = st
		s.order = append(s.order, id)
	}
	return s, nil
}

// Handler returns the router. Useful for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", s.server.Addr)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

func (s *Server) station(id string) (*Station, bool) {
	st, ok := s.stations[id]
	return st, ok
}
