package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Capture Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Detection DetectionConfig `yaml:"detection"`
	Driver    DriverConfig    `yaml:"driver"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings. The broker mirror is
// optional; with Enabled false no connection is attempted.
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for capture
// telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DetectionConfig contains hardware detection settings.
type DetectionConfig struct {
	// Timeout bounds each detector probe, in seconds.
	Timeout int `yaml:"timeout"`

	Serial  SerialDetectionConfig  `yaml:"serial"`
	Network NetworkDetectionConfig `yaml:"network"`
	Vendor  VendorDetectionConfig  `yaml:"vendor"`
}

// SerialDetectionConfig tunes the serial-port detector.
type SerialDetectionConfig struct {
	// VendorScores maps "VID:PID" pairs to 1-100 confidence, overriding
	// or extending the built-in table.
	VendorScores map[string]int `yaml:"vendor_scores"`
}

// NetworkDetectionConfig tunes the network probe.
type NetworkDetectionConfig struct {
	// Hosts to probe. Empty disables network detection.
	Hosts []string `yaml:"hosts"`

	// Ports probed on each host.
	Ports []int `yaml:"ports"`

	// ProbeTimeout bounds one connection attempt, in milliseconds.
	ProbeTimeout int `yaml:"probe_timeout"`
}

// VendorDetectionConfig configures the external vendor scan utility.
type VendorDetectionConfig struct {
	// Scanner is the path to the vendor scan utility. Empty disables it.
	Scanner string `yaml:"scanner"`

	// Args are extra arguments passed to the scanner.
	Args []string `yaml:"args"`

	// Timeout bounds one scanner run, in seconds.
	Timeout int `yaml:"timeout"`
}

// DriverConfig contains device driver settings.
type DriverConfig struct {
	// SerialBaud is the baud rate for serial devices.
	SerialBaud int `yaml:"serial_baud"`

	// ConnectTimeout bounds dial plus handshake, in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`

	// ReadTimeout bounds the wait for a capture payload, in seconds.
	ReadTimeout int `yaml:"read_timeout"`

	// AckTimeout bounds the wait for a configuration ACK, in seconds.
	AckTimeout int `yaml:"ack_timeout"`

	// VoltageTimeout bounds the voltage-status query, in seconds.
	VoltageTimeout int `yaml:"voltage_timeout"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CAPTURECORE_SECTION_KEY
// For example: CAPTURECORE_DATABASE_PATH, CAPTURECORE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults. Used directly when no
// configuration file is given.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/capturecore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "capturecore",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Detection: DetectionConfig{
			Timeout: 5,
			Network: NetworkDetectionConfig{
				Ports:        []int{5000},
				ProbeTimeout: 500,
			},
			Vendor: VendorDetectionConfig{
				Timeout: 10,
			},
		},
		Driver: DriverConfig{
			SerialBaud:     115200,
			ConnectTimeout: 10,
			ReadTimeout:    30,
			AckTimeout:     5,
			VoltageTimeout: 3,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CAPTURECORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("CAPTURECORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("CAPTURECORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CAPTURECORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CAPTURECORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("CAPTURECORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Detection
	if v := os.Getenv("CAPTURECORE_DETECTION_HOSTS"); v != "" {
		cfg.Detection.Network.Hosts = strings.Split(v, ",")
	}
	if v := os.Getenv("CAPTURECORE_VENDOR_SCANNER"); v != "" {
		cfg.Detection.Vendor.Scanner = v
	}

	// Driver
	if v := os.Getenv("CAPTURECORE_SERIAL_BAUD"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			cfg.Driver.SerialBaud = baud
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// Detection validation
	for key, score := range c.Detection.Serial.VendorScores {
		if score < 1 || score > 100 {
			errs = append(errs, fmt.Sprintf("detection.serial.vendor_scores[%s] must be 1-100", key))
		}
	}
	for _, port := range c.Detection.Network.Ports {
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("detection.network.ports contains invalid port %d", port))
		}
	}

	// Driver validation
	if c.Driver.SerialBaud <= 0 {
		errs = append(errs, "driver.serial_baud must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetDetectTimeout returns the per-detector probe timeout as a Duration.
func (c *Config) GetDetectTimeout() time.Duration {
	return time.Duration(c.Detection.Timeout) * time.Second
}

// GetProbeTimeout returns the network probe timeout as a Duration.
func (c *Config) GetProbeTimeout() time.Duration {
	return time.Duration(c.Detection.Network.ProbeTimeout) * time.Millisecond
}

// GetScanTimeout returns the vendor scanner timeout as a Duration.
func (c *Config) GetScanTimeout() time.Duration {
	return time.Duration(c.Detection.Vendor.Timeout) * time.Second
}

// GetConnectTimeout returns the driver connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Driver.ConnectTimeout) * time.Second
}

// GetReadTimeout returns the driver read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Driver.ReadTimeout) * time.Second
}

// GetAckTimeout returns the driver ACK timeout as a Duration.
func (c *Config) GetAckTimeout() time.Duration {
	return time.Duration(c.Driver.AckTimeout) * time.Second
}

// GetVoltageTimeout returns the voltage query timeout as a Duration.
func (c *Config) GetVoltageTimeout() time.Duration {
	return time.Duration(c.Driver.VoltageTimeout) * time.Second
}
