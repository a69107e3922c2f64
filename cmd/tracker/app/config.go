package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/lakmal-w/campustrack/internal/geofence"
	"github.com/lakmal-w/campustrack/internal/positioning"
)

const (
	DeviceKindMobile     = "mobile"
	DeviceKindStationary = "stationary"

	TierNameContinuous = "continuous"
	TierNamePeriodic   = "periodic"
	TierNameNetwork    = "network"
)

// Config represents the main application configuration
type Config struct {
	Settings    Settings           `yaml:"settings"`
	Campus      CampusConfig       `yaml:"campus"`
	Devices     []DeviceConfig     `yaml:"devices" validate:"dive"`
	Positioning positioning.Config `yaml:"positioning"`
	Locate      LocateConfig       `yaml:"locate"`
	Push        PushConfig         `yaml:"push"`
	Storage     StorageConfig      `yaml:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel         string        `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	ProbeInterval    time.Duration `yaml:"probeInterval"`
	NetworkInterval  time.Duration `yaml:"networkInterval"`
}

// CampusConfig describes the campus footprint and its zones. A zero
// origin falls back to the default campus.
type CampusConfig struct {
	Latitude  float64            `yaml:"latitude"`
	Longitude float64            `yaml:"longitude"`
	Width     float64            `yaml:"width"`
	Height    float64            `yaml:"height"`
	Zones     []geofence.ZoneDef `yaml:"zones" validate:"dive"`
}

// DeviceConfig represents a single tracked device configuration
type DeviceConfig struct {
	ID      string `yaml:"id" validate:"required"`
	Kind    string `yaml:"kind" validate:"omitempty,oneof=mobile stationary"`
	Tier    string `yaml:"tier" validate:"omitempty,oneof=continuous periodic network"`
	Enabled bool   `yaml:"enabled"`
}

// LocateConfig lists the network location endpoints tried in order.
type LocateConfig struct {
	Endpoints []string      `yaml:"endpoints" validate:"dive,url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// PushConfig represents push propagation settings
type PushConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address" validate:"required_if=Enabled true"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
}

// LoadConfig reads, parses and validates the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	v := validator.New()
	if err = v.Struct(config); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	if len(config.Campus.Zones) == 0 {
		config.Campus.Zones = geofence.DefaultZones()
	}
	if config.Settings.SnapshotInterval <= 0 {
		config.Settings.SnapshotInterval = 30 * time.Second
	}

	return &config, nil
}

// SlogLevel maps the configured log level name onto a slog.Level.
func (s Settings) SlogLevel() slog.Level {
	switch s.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
