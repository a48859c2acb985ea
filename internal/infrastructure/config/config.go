package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Runchain Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site         SiteConfig         `yaml:"site"`
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	API          APIConfig          `yaml:"api"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
	ValueChannel ValueChannelConfig `yaml:"value_channel"`
	Workflow     WorkflowConfig     `yaml:"workflow"`
	Devices      []DeviceConfig     `yaml:"devices"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
// The database holds the queryable mirror of execution records.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP control API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig controls the Prometheus collectors.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ValueChannelConfig configures the remote value channel used for the
// grip-pressure check and registry document transfer.
type ValueChannelConfig struct {
	// Transport selects the implementation: "mqtt" or "memory".
	Transport string `yaml:"transport"`

	// Namespace qualifies every value name (e.g. "mynamespace").
	Namespace string `yaml:"namespace"`

	// Object is the owning object of the values (e.g. "vPLC").
	Object string `yaml:"object"`

	// PressureVariable is the name of the grip-pressure value.
	PressureVariable string `yaml:"pressure_variable"`

	// ReadTimeout bounds a single request/response round trip.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// WorkflowConfig contains sequencer settings shared by all devices.
type WorkflowConfig struct {
	// BuildDevice is the device that runs pick/convey/classify steps.
	BuildDevice string `yaml:"build_device"`

	// HandoffDevice is the device that receives the gated Move after a build.
	HandoffDevice string `yaml:"handoff_device"`

	// HandoffOffset is the relative conveyor move issued on hand-off.
	HandoffOffset float64 `yaml:"handoff_offset"`

	// PreDelay is waited before a background build starts.
	PreDelay time.Duration `yaml:"pre_delay"`

	// MaxAttempts caps attempts per target. 0 means unbounded.
	MaxAttempts int `yaml:"max_attempts"`

	// TargetsFile is the default arch/targets file used by the build command.
	TargetsFile string `yaml:"targets_file"`

	// Services maps workflow steps to registry service names.
	Services WorkflowServices `yaml:"services"`
}

// WorkflowServices names the registry services each workflow step is gated on.
type WorkflowServices struct {
	Pick     string `yaml:"pick"`
	Convey   string `yaml:"convey"`
	Classify string `yaml:"classify"`
	Place    string `yaml:"place"`
	Handoff  string `yaml:"handoff"`
}

// DeviceConfig describes one physical work-cell.
type DeviceConfig struct {
	ID string `yaml:"id"`

	// Role selects the cell operations: "vision" or "conveyor".
	Role string `yaml:"role"`

	// RegistryPath is the persisted registry document for this device.
	// Paths must be unique across devices.
	RegistryPath string `yaml:"registry_path"`

	// BootstrapPath is copied to RegistryPath when the latter does not exist.
	BootstrapPath string `yaml:"bootstrap_path"`

	// ExecutionLogPath receives one line per gated action.
	ExecutionLogPath string `yaml:"execution_log_path"`

	// PointsFile holds calibration points (observe_point, pickpoint, ...).
	PointsFile string `yaml:"points_file"`

	Workspace  string `yaml:"workspace"`
	SensorPin  string `yaml:"sensor_pin"`
	ConveyorID int    `yaml:"conveyor_id"`

	// SensorTimeout bounds convey-until-detect.
	SensorTimeout time.Duration `yaml:"sensor_timeout"`

	// PressureThreshold is the minimum grip pressure for a successful grasp.
	PressureThreshold float64 `yaml:"pressure_threshold"`

	// GripCheckTimeout bounds the pressure read. Defaults to value_channel.read_timeout.
	GripCheckTimeout time.Duration `yaml:"grip_check_timeout"`

	// WatchRegistry reloads the document when another tool replaces it.
	WatchRegistry bool `yaml:"watch_registry"`

	// Services seeds the registry document when no document exists yet.
	Services []ServiceConfig `yaml:"services"`

	// BuildSlots are the build positions, one per target, in build order.
	BuildSlots [][]float64 `yaml:"build_slots"`
}

// ServiceConfig is a bootstrap service descriptor.
type ServiceConfig struct {
	Name           string `yaml:"name"`
	Input          string `yaml:"input"`
	Output         string `yaml:"output"`
	DriverFunction string `yaml:"driver_function"`
	Effector       string `yaml:"effector"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RUNCHAIN_SECTION_KEY
// For example: RUNCHAIN_DATABASE_PATH, RUNCHAIN_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDeviceDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default device values applied when a device entry leaves them unset.
const (
	defaultSensorTimeout     = 10 * time.Second
	defaultPressureThreshold = 0.5
	defaultHandoffOffset     = 100
)

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "line-001",
			Name: "Runchain",
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/runchain.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "runchain-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "runchain",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		ValueChannel: ValueChannelConfig{
			Transport:        "memory",
			Namespace:        "mynamespace",
			Object:           "vPLC",
			PressureVariable: "pression",
			ReadTimeout:      3 * time.Second,
		},
		Workflow: WorkflowConfig{
			HandoffOffset: defaultHandoffOffset,
			PreDelay:      5 * time.Second,
			Services: WorkflowServices{
				Pick:     "Pick",
				Convey:   "Convey",
				Classify: "ColorAndShapeDetection",
				Place:    "Place",
				Handoff:  "Move",
			},
		},
	}
}

// applyDeviceDefaults fills unset per-device values.
func (c *Config) applyDeviceDefaults() {
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.SensorTimeout <= 0 {
			d.SensorTimeout = defaultSensorTimeout
		}
		if d.PressureThreshold == 0 {
			d.PressureThreshold = defaultPressureThreshold
		}
		if d.GripCheckTimeout <= 0 {
			d.GripCheckTimeout = c.ValueChannel.ReadTimeout
		}
		if d.ExecutionLogPath == "" {
			d.ExecutionLogPath = "service_metrics.txt"
		}
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RUNCHAIN_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RUNCHAIN_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("RUNCHAIN_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RUNCHAIN_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RUNCHAIN_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("RUNCHAIN_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("RUNCHAIN_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("RUNCHAIN_VALUE_CHANNEL_TRANSPORT"); v != "" {
		cfg.ValueChannel.Transport = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	switch c.ValueChannel.Transport {
	case "memory":
	case "mqtt":
		if !c.MQTT.Enabled {
			errs = append(errs, "value_channel.transport mqtt requires mqtt.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("value_channel.transport %q must be mqtt or memory", c.ValueChannel.Transport))
	}
	if c.ValueChannel.ReadTimeout <= 0 {
		errs = append(errs, "value_channel.read_timeout must be positive")
	}

	if c.Workflow.MaxAttempts < 0 {
		errs = append(errs, "workflow.max_attempts must not be negative")
	}

	errs = append(errs, c.validateDevices()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateDevices checks device entries and the workflow device references.
// Registry paths must be unique so that each document has a single writer.
func (c *Config) validateDevices() []string {
	var errs []string

	ids := make(map[string]bool, len(c.Devices))
	paths := make(map[string]string, len(c.Devices))
	for i, d := range c.Devices {
		if d.ID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].id is required", i))
			continue
		}
		if ids[d.ID] {
			errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicated", i, d.ID))
		}
		ids[d.ID] = true

		if d.Role != "vision" && d.Role != "conveyor" {
			errs = append(errs, fmt.Sprintf("device %s: role must be vision or conveyor", d.ID))
		}
		if d.RegistryPath == "" {
			errs = append(errs, fmt.Sprintf("device %s: registry_path is required", d.ID))
		} else if other, ok := paths[d.RegistryPath]; ok {
			errs = append(errs, fmt.Sprintf("device %s: registry_path shared with device %s", d.ID, other))
		} else {
			paths[d.RegistryPath] = d.ID
		}
		if d.PressureThreshold < 0 {
			errs = append(errs, fmt.Sprintf("device %s: pressure_threshold must not be negative", d.ID))
		}
	}

	if c.Workflow.BuildDevice != "" && !ids[c.Workflow.BuildDevice] {
		errs = append(errs, fmt.Sprintf("workflow.build_device %q is not a configured device", c.Workflow.BuildDevice))
	}
	if c.Workflow.HandoffDevice != "" && !ids[c.Workflow.HandoffDevice] {
		errs = append(errs, fmt.Sprintf("workflow.handoff_device %q is not a configured device", c.Workflow.HandoffDevice))
	}

	return errs
}

// Device returns the configuration of the device with the given ID.
//
// Parameters:
//   - id: device ID as written in the devices list, matched exactly
//
// Returns:
//   - DeviceConfig: the entry with defaults applied by Load
//   - bool: false when no device has that ID
func (c *Config) Device(id string) (DeviceConfig, bool) {
	for _, d := range c.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return DeviceConfig{}, false
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
