// Package config loads beacond configuration from defaults, an optional YAML file
// and BEACON_* environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/user/proximity-beacon/beacon"
	"github.com/user/proximity-beacon/logger"
	"github.com/user/proximity-beacon/util"
	"gopkg.in/yaml.v3"
)

// Config represents the complete daemon configuration
type Config struct {
	Beacon    BeaconConfig    `yaml:"beacon"`
	Radio     RadioConfig     `yaml:"radio"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// BeaconConfig holds the advertised identity and the cycle timing
type BeaconConfig struct {
	IntervalMs            int    `yaml:"intervalMs"`
	StartDelayMs          int    `yaml:"startDelayMs"`
	AdvertiseTimeoutMs    int    `yaml:"advertiseTimeoutMs"`
	ServiceUUID           string `yaml:"serviceUuid"`
	ManufacturerID        uint16 `yaml:"manufacturerId"`
	ManufacturerSubstring string `yaml:"manufacturerSubstring"`
}

// RadioConfig describes the simulated host adapter
type RadioConfig struct {
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// TelemetryConfig controls the fault record file. An empty path disables it.
type TelemetryConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	Buffer     int    `yaml:"buffer"`
}

// Load loads configuration from defaults, file, and environment variables
func Load(filename string) (*Config, error) {
	cfg := getDefaultConfig()

	if filename != "" {
		if err := loadFromFile(cfg, filename); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// getDefaultConfig returns the default configuration
func getDefaultConfig() *Config {
	return &Config{
		Beacon: BeaconConfig{
			IntervalMs:            int(beacon.DefaultInterval / time.Millisecond),
			StartDelayMs:          int(beacon.DefaultStartDelay / time.Millisecond),
			AdvertiseTimeoutMs:    int(beacon.DefaultAdvertiseTimeout / time.Millisecond),
			ServiceUUID:           beacon.DefaultServiceUUID.String(),
			ManufacturerID:        beacon.DefaultManufacturerID,
			ManufacturerSubstring: beacon.DefaultManufacturerSubstring,
		},
		Radio: RadioConfig{
			Address: "AA:BB:CC:DD:EE:01",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
		Telemetry: TelemetryConfig{
			Path:       filepath.Join(util.GetTelemetryDir(), "faults.cbor"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			Buffer:     64,
		},
	}
}

// loadFromFile loads configuration from a YAML file. Keys missing from the file
// keep their current values.
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("BEACON_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BEACON_INTERVAL_MS: %w", err)
		}
		cfg.Beacon.IntervalMs = ms
	}

	if v := os.Getenv("BEACON_SERVICE_UUID"); v != "" {
		cfg.Beacon.ServiceUUID = v
	}

	if v := os.Getenv("BEACON_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v, ok := os.LookupEnv("BEACON_TELEMETRY_PATH"); ok {
		cfg.Telemetry.Path = v
	}

	return nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if err := (beacon.CycleConfig{Interval: c.Interval()}).Validate(); err != nil {
		return fmt.Errorf("beacon.intervalMs %d: %w", c.Beacon.IntervalMs, err)
	}
	if c.Beacon.StartDelayMs < 0 {
		return fmt.Errorf("beacon.startDelayMs must not be negative, got %d", c.Beacon.StartDelayMs)
	}
	// Advertising timeouts are capped by the controller at 180 seconds.
	if c.Beacon.AdvertiseTimeoutMs < 0 || c.Beacon.AdvertiseTimeoutMs > 180000 {
		return fmt.Errorf("beacon.advertiseTimeoutMs must be 0-180000, got %d", c.Beacon.AdvertiseTimeoutMs)
	}
	if _, err := uuid.Parse(c.Beacon.ServiceUUID); err != nil {
		return fmt.Errorf("beacon.serviceUuid %q: %w", c.Beacon.ServiceUUID, err)
	}
	if err := c.Identity().Validate(); err != nil {
		return fmt.Errorf("beacon.manufacturerSubstring %q: %w", c.Beacon.ManufacturerSubstring, err)
	}
	if c.Radio.Address == "" {
		return fmt.Errorf("radio.address is required")
	}
	if c.Telemetry.MaxSizeMB <= 0 {
		return fmt.Errorf("telemetry.maxSizeMb must be positive, got %d", c.Telemetry.MaxSizeMB)
	}
	if c.Telemetry.MaxBackups < 0 {
		return fmt.Errorf("telemetry.maxBackups must not be negative, got %d", c.Telemetry.MaxBackups)
	}
	if c.Telemetry.Buffer <= 0 {
		return fmt.Errorf("telemetry.buffer must be positive, got %d", c.Telemetry.Buffer)
	}
	return nil
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.Beacon.IntervalMs) * time.Millisecond
}

func (c *Config) StartDelay() time.Duration {
	return time.Duration(c.Beacon.StartDelayMs) * time.Millisecond
}

func (c *Config) AdvertiseTimeout() time.Duration {
	return time.Duration(c.Beacon.AdvertiseTimeoutMs) * time.Millisecond
}

func (c *Config) LogLevel() logger.LogLevel {
	return logger.ParseLevel(c.Logging.Level)
}

// Identity builds the advertised beacon identity. Call it on a validated config.
func (c *Config) Identity() beacon.Identity {
	return beacon.NewIdentity(
		uuid.MustParse(c.Beacon.ServiceUUID),
		c.Beacon.ManufacturerID,
		[]byte(c.Beacon.ManufacturerSubstring),
	)
}
