package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nothineazi/robotic-chain-control/migrations"

	"github.com/nothineazi/robotic-chain-control/internal/api"
	"github.com/nothineazi/robotic-chain-control/internal/capability"
	"github.com/nothineazi/robotic-chain-control/internal/capability/sim"
	"github.com/nothineazi/robotic-chain-control/internal/cell"
	"github.com/nothineazi/robotic-chain-control/internal/device"
	"github.com/nothineazi/robotic-chain-control/internal/execlog"
	"github.com/nothineazi/robotic-chain-control/internal/infrastructure/config"
	"github.com/nothineazi/robotic-chain-control/internal/infrastructure/database"
	"github.com/nothineazi/robotic-chain-control/internal/infrastructure/influxdb"
	"github.com/nothineazi/robotic-chain-control/internal/infrastructure/logging"
	"github.com/nothineazi/robotic-chain-control/internal/infrastructure/mqtt"
	"github.com/nothineazi/robotic-chain-control/internal/registry"
	"github.com/nothineazi/robotic-chain-control/internal/valuechannel"
	"github.com/nothineazi/robotic-chain-control/internal/workflow"
)

const shutdownTimeout = 15 * time.Second

// station is one configured device with its registry and cell operations.
type station struct {
	cfg      config.DeviceConfig
	registry *registry.Store
	device   *device.Device
	robot    *sim.Robot

	vision   *cell.VisionCell
	conveyor *cell.ConveyorCell
}

// line is the assembled process: infrastructure, devices and sequencer.
// Optional connections are nil when disabled.
type line struct {
	cfg *config.Config
	log *logging.Logger

	db      *database.DB
	mqtt    *mqtt.Client
	influx  *influxdb.Client
	channel valuechannel.Channel
	metrics *prometheus.Registry

	executions *execlog.SQLiteRepository
	tasks      *workflow.SQLiteTaskRepository
	notifier   *workflow.PublishNotifier
	sequencer  *workflow.Sequencer

	stations map[string]*station
	order    []string

	closers []func()
}

// openLine connects the enabled infrastructure and opens every device.
// On error everything opened so far is closed again.
func openLine(ctx context.Context, cfg *config.Config, log *logging.Logger) (*line, error) {
	l := &line{cfg: cfg, log: log, stations: make(map[string]*station, len(cfg.Devices))}
	if err := l.open(ctx); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func (l *line) open(ctx context.Context) error {
	cfg, log := l.cfg, l.log
	if err := l.openInfrastructure(ctx); err != nil {
		return err
	}

	sinks, err := l.sharedSinks()
	if err != nil {
		return err
	}
	for _, dc := range cfg.Devices {
		st, err := l.openStation(dc, sinks)
		if err != nil {
			return fmt.Errorf("device %s: %w", dc.ID, err)
		}
		l.stations[dc.ID] = st
		l.order = append(l.order, dc.ID)
	}

	seqCfg := workflow.SequencerConfig{Logger: log}
	if l.tasks != nil {
		seqCfg.Store = l.tasks
	}
	if l.notifier != nil {
		seqCfg.Notifier = l.notifier
	}
	l.sequencer = workflow.NewSequencer(seqCfg)
	return nil
}

func (l *line) openInfrastructure(ctx context.Context) error {
	cfg, log := l.cfg, l.log

	if cfg.Database.Enabled {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		l.onClose(func() {
			log.Info("closing database")
			if err := db.Close(); err != nil {
				log.Error("error closing database", "error", err)
			}
		})
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		l.db = db
		l.executions = execlog.NewSQLiteRepository(db.DB)
		l.tasks = workflow.NewSQLiteTaskRepository(db.DB)
		log.Info("database ready", "path", cfg.Database.Path)
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		l.onClose(func() {
			log.Info("disconnecting from MQTT")
			if err := client.Close(); err != nil {
				log.Error("error closing MQTT", "error", err)
			}
		})
		client.SetLogger(log)
		client.SetOnConnect(func() { log.Info("MQTT reconnected") })
		client.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		l.mqtt = client
		l.notifier = workflow.NewPublishNotifier(client, mqtt.Topics{}.BuildStatus, mqtt.Topics{}.Handoff)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		l.onClose(func() {
			log.Info("closing InfluxDB connection")
			if err := client.Close(); err != nil {
				log.Error("error closing InfluxDB", "error", err)
			}
		})
		client.SetOnError(func(err error) { log.Error("InfluxDB write error", "error", err) })
		l.influx = client
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	switch cfg.ValueChannel.Transport {
	case "mqtt":
		l.channel = valuechannel.NewMQTT(l.mqtt, l.mqtt.QoS())
	default:
		l.channel = valuechannel.NewMemory()
	}
	return nil
}

// sharedSinks returns the execution sinks every device records to, besides
// its own execution log file.
func (l *line) sharedSinks() ([]execlog.Sink, error) {
	var sinks []execlog.Sink
	if l.executions != nil {
		sinks = append(sinks, l.executions)
	}
	if l.cfg.Metrics.Enabled {
		l.metrics = prometheus.NewRegistry()
		l.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := execlog.NewMetrics(l.cfg.Metrics.Namespace, l.metrics)
		if err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
		sinks = append(sinks, m)
	}
	if l.influx != nil {
		sinks = append(sinks, execlog.NewInfluxSink(l.influx))
	}
	if l.mqtt != nil {
		sinks = append(sinks, execlog.NewPublishSink(l.mqtt, mqtt.Topics{}.DeviceExecution))
	}
	return sinks, nil
}

type stateEvent struct {
	DeviceID  string    `json:"device_id"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

func (l *line) openStation(dc config.DeviceConfig, shared []execlog.Sink) (*station, error) {
	reg, err := registry.Open(dc.RegistryPath, registry.Options{
		ID:        dc.ID,
		Bootstrap: dc.BootstrapPath,
		Services:  descriptors(dc.Services),
		Logger:    l.log,
	})
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}
	l.onClose(func() {
		if err := reg.Close(); err != nil {
			l.log.Error("error closing registry", "device_id", dc.ID, "error", err)
		}
	})

	recorder := execlog.NewRecorder(append([]execlog.Sink{execlog.NewFileSink(dc.ExecutionLogPath)}, shared...)...)
	recorder.SetLogger(l.log)

	robot := sim.New()
	robot.PressureChannel = l.channel
	robot.PressureAddress = l.pressureAddress()
	caps := robot.Caps()
	caps.Grip = capability.NewPressureGauge(l.channel, l.pressureAddress(), dc.GripCheckTimeout)

	devCfg := device.Config{
		ID:       dc.ID,
		Registry: reg,
		Caps:     caps,
		Recorder: recorder,
		Logger:   l.log,
	}
	if l.mqtt != nil {
		client := l.mqtt
		devCfg.Publisher = device.PublisherFunc(func(id string, st registry.State) error {
			return client.PublishJSON(mqtt.Topics{}.DeviceState(id), stateEvent{
				DeviceID:  id,
				State:     string(st),
				Timestamp: time.Now().UTC(),
			}, true)
		})
	}
	dev, err := device.New(devCfg)
	if err != nil {
		return nil, err
	}

	st := &station{cfg: dc, registry: reg, device: dev, robot: robot}
	switch dc.Role {
	case "vision":
		st.vision, err = l.visionCell(dc, caps)
		if err != nil {
			return nil, err
		}
	case "conveyor":
		st.conveyor = cell.NewConveyorCell(caps, nil)
	}
	return st, nil
}

func (l *line) visionCell(dc config.DeviceConfig, caps capability.Set) (*cell.VisionCell, error) {
	if dc.PointsFile == "" {
		return nil, fmt.Errorf("points_file is required for a vision device")
	}
	points, err := capability.LoadPoints(dc.PointsFile)
	if err != nil {
		return nil, err
	}
	slots := make([]capability.Pose, 0, len(dc.BuildSlots))
	for i, v := range dc.BuildSlots {
		pose, err := capability.PoseFromValues(v)
		if err != nil {
			return nil, fmt.Errorf("build_slots[%d]: %w", i, err)
		}
		slots = append(slots, pose)
	}

	var tracer capability.Tracer = capability.NopTracer{}
	if l.influx != nil {
		tracer = capability.NewSeriesTracer(l.influx)
	}
	return cell.NewVisionCell(cell.VisionConfig{
		DeviceID:          dc.ID,
		Workspace:         dc.Workspace,
		SensorPin:         dc.SensorPin,
		ConveyorID:        dc.ConveyorID,
		SensorTimeout:     dc.SensorTimeout,
		PressureThreshold: dc.PressureThreshold,
		Points:            points,
		BuildSlots:        slots,
	}, caps, tracer)
}

func descriptors(services []config.ServiceConfig) []registry.ServiceDescriptor {
	out := make([]registry.ServiceDescriptor, 0, len(services))
	for _, s := range services {
		out = append(out, registry.ServiceDescriptor{
			Name:           s.Name,
			Input:          s.Input,
			Output:         s.Output,
			DriverFunction: s.DriverFunction,
			Effector:       s.Effector,
		})
	}
	return out
}

func (l *line) pressureAddress() valuechannel.Address {
	vc := l.cfg.ValueChannel
	return valuechannel.Address{Namespace: vc.Namespace, Object: vc.Object, Name: vc.PressureVariable}
}

// registryAddress is where a device registry document is exchanged over
// the value channel.
func (l *line) registryAddress(deviceID string) valuechannel.Address {
	vc := l.cfg.ValueChannel
	return valuechannel.Address{Namespace: vc.Namespace, Object: vc.Object, Name: deviceID + "_registry"}
}

func (l *line) station(id string) (*station, error) {
	if id == "" {
		if len(l.order) == 1 {
			return l.stations[l.order[0]], nil
		}
		return nil, fmt.Errorf("--device is required when more than one device is configured")
	}
	st, ok := l.stations[id]
	if !ok {
		return nil, fmt.Errorf("unknown device %q", id)
	}
	return st, nil
}

// firstWithRole returns the first configured device of role.
func (l *line) firstWithRole(role string) *station {
	for _, id := range l.order {
		if st := l.stations[id]; st.cfg.Role == role {
			return st
		}
	}
	return nil
}

func (l *line) services() workflow.Services {
	s := l.cfg.Workflow.Services
	return workflow.Services{
		Pick:     s.Pick,
		Convey:   s.Convey,
		Classify: s.Classify,
		Place:    s.Place,
		Handoff:  s.Handoff,
	}
}

// newBuild assembles a build of targets on the configured build device,
// handing off to the configured (or first conveyor) device.
func (l *line) newBuild(targets []workflow.Target) (*workflow.Build, error) {
	wf := l.cfg.Workflow

	builder := l.firstWithRole("vision")
	if wf.BuildDevice != "" {
		builder = l.stations[wf.BuildDevice]
	}
	if builder == nil || builder.vision == nil {
		return nil, fmt.Errorf("%w: no vision device configured for builds", workflow.ErrInvalidBuild)
	}

	b := &workflow.Build{
		Targets:       targets,
		Vision:        builder.device,
		VisionOps:     builder.vision,
		HandoffOffset: wf.HandoffOffset,
		Services:      l.services(),
		MaxAttempts:   wf.MaxAttempts,
		Logger:        l.log,
	}

	receiver := l.firstWithRole("conveyor")
	if wf.HandoffDevice != "" {
		receiver = l.stations[wf.HandoffDevice]
	}
	if receiver != nil && receiver.conveyor != nil {
		b.Handoff = receiver.device
		b.HandoffOps = receiver.conveyor
		if l.notifier != nil {
			b.OnHandoff = l.notifier.Handoff
		}
	}
	return b, nil
}

// apiStations exposes every device to the HTTP API.
func (l *line) apiStations() []*api.Station {
	out := make([]*api.Station, 0, len(l.order))
	for _, id := range l.order {
		st := l.stations[id]
		as := &api.Station{Device: st.device, Registry: st.registry}
		if st.vision != nil {
			as.Vision = st.vision
		}
		if st.conveyor != nil {
			as.Feeder = st.conveyor
		}
		out = append(out, as)
	}
	return out
}

func (l *line) onClose(fn func()) {
	l.closers = append(l.closers, fn)
}

// Close stops the sequencer and releases everything in reverse open order.
func (l *line) Close() {
	if l.sequencer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := l.sequencer.Shutdown(ctx); err != nil {
			l.log.Warn("sequencer shutdown", "error", err)
		}
		cancel()
	}
	if l.influx != nil {
		l.influx.Flush()
	}
	for i := len(l.closers) - 1; i >= 0; i-- {
		l.closers[i]()
	}
	l.closers = nil
}
