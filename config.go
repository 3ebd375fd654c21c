package tse

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"tse/channel"
	"tse/ik"
	"tse/snapshot"
	"tse/transport"
)

// DefaultUnitsScale converts the mechanism's inches to the controller's
// millimeters.
const DefaultUnitsScale = 25.4

// ExtenderConfig configures one extender and the controller it drives.
type ExtenderConfig struct {
	Transport transport.Config `json:"transport" yaml:"transport"`

	// Controller handshake
	TimeoutMs int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	ByteOrder string `json:"byte_order,omitempty" yaml:"byte_order,omitempty"` // "little" or "big"

	// Multiplier applied to every command before it is sent.
	UnitsScale float64 `json:"units_scale,omitempty" yaml:"units_scale,omitempty"`

	Mechanism ik.Mechanism      `json:"mechanism,omitempty" yaml:"mechanism,omitempty"`
	Workspace *ik.Workspace     `json:"workspace,omitempty" yaml:"workspace,omitempty"`
	Actuators ik.ActuatorLimits `json:"actuators,omitempty" yaml:"actuators,omitempty"`
	Solver    ik.SolverOptions  `json:"solver,omitempty" yaml:"solver,omitempty"`

	// Snapshot outputs
	History     int                  `json:"history,omitempty" yaml:"history,omitempty"`
	ResultsFile string               `json:"results_file,omitempty" yaml:"results_file,omitempty"`
	MQTT        *snapshot.MQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
}

// Validate ensures all parts of the config are valid and fills defaults.
func (cfg *ExtenderConfig) Validate(path string) ([]string, []string, error) {
	if err := cfg.Transport.Validate(path + ".transport"); err != nil {
		return nil, nil, err
	}

	if cfg.TimeoutMs < 0 {
		return nil, nil, fmt.Errorf("timeout_ms must not be negative, got %d", cfg.TimeoutMs)
	}
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = int(channel.DefaultTimeout / time.Millisecond)
	}

	switch cfg.ByteOrder {
	case "":
		cfg.ByteOrder = "little"
	case "little", "big":
	default:
		return nil, nil, fmt.Errorf("byte_order must be 'little' or 'big', got '%s'", cfg.ByteOrder)
	}

	if cfg.UnitsScale == 0 {
		cfg.UnitsScale = DefaultUnitsScale
	}
	if cfg.UnitsScale < 0 {
		return nil, nil, fmt.Errorf("units_scale must be positive, got %v", cfg.UnitsScale)
	}

	if cfg.History == 0 {
		cfg.History = 100
	}

	cfg.Mechanism = cfg.Mechanism.WithDefaults()
	if err := cfg.Mechanism.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, path)
	}
	if cfg.Workspace != nil {
		if err := cfg.Workspace.Validate(); err != nil {
			return nil, nil, errors.Wrap(err, path)
		}
	}
	cfg.Actuators = cfg.Actuators.WithDefaults()
	if err := cfg.Actuators.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, path)
	}
	cfg.Solver = cfg.Solver.WithDefaults()

	if cfg.MQTT != nil {
		if err := cfg.MQTT.Validate(path + ".mqtt"); err != nil {
			return nil, nil, err
		}
	}

	return nil, nil, nil
}

// IK returns the pipeline configuration.
func (cfg *ExtenderConfig) IK() ik.Config {
	return ik.Config{
		Mechanism: cfg.Mechanism,
		Workspace: cfg.Workspace,
		Actuators: cfg.Actuators,
		Solver:    cfg.Solver,
	}
}

// ChannelOptions returns the handshake options.
func (cfg *ExtenderConfig) ChannelOptions() channel.Options {
	opts := channel.Options{
		Timeout:   time.Duration(cfg.TimeoutMs) * time.Millisecond,
		ByteOrder: binary.LittleEndian,
	}
	if cfg.ByteOrder == "big" {
		opts.ByteOrder = binary.BigEndian
	}
	return opts
}

// ResultsPath resolves a relative results file against VIAM_MODULE_DATA.
func (cfg *ExtenderConfig) ResultsPath() string {
	if cfg.ResultsFile == "" || filepath.IsAbs(cfg.ResultsFile) {
		return cfg.ResultsFile
	}
	moduleDataDir := os.Getenv("VIAM_MODULE_DATA")
	if moduleDataDir == "" {
		moduleDataDir = "/tmp"
	}
	return filepath.Join(moduleDataDir, cfg.ResultsFile)
}

// LoadConfigFile reads and validates a YAML (or JSON) extender config.
func LoadConfigFile(path string) (*ExtenderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	var cfg ExtenderConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if _, _, err := cfg.Validate(filepath.Base(path)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// channelConfigsEqual reports whether two extenders can share one channel.
func channelConfigsEqual(a, b *ExtenderConfig) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.Transport.Equal(b.Transport) &&
		a.TimeoutMs == b.TimeoutMs &&
		a.ByteOrder == b.ByteOrder
}
