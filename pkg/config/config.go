package config

import (
	"Dumbbell/api"
	"Dumbbell/pkg/node"
	"Dumbbell/pkg/orchestrator"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the optional experiment file. Every field has a default, so an
// empty file is valid.
type Config struct {
	Experiment api.ExperimentConfig `toml:"experiment"`
	Runtime    RuntimeConfig        `toml:"runtime"`
	Output     OutputConfig         `toml:"output"`
	Log        LogConfig            `toml:"log"`
}

type RuntimeConfig struct {
	Image string `toml:"image"`
	// ReceiverSettle is a duration string, e.g. "1s".
	ReceiverSettle string `toml:"receiver_settle"`
	MinDrain       string `toml:"min_drain"`
}

type OutputConfig struct {
	Dir string `toml:"dir"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load decodes a TOML file and fills in defaults. Keys that are not part
// of Config are rejected.
func Load(path string) (*Config, error) {
	var c Config
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in %s: %v", path, undecoded)
	}
	c.applyDefaults()
	if _, err := c.Durations(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	// the zero DelayClass is short
	if c.Experiment.GraceFactor == 0 {
		c.Experiment.GraceFactor = orchestrator.DefaultGraceFactor
	}
	if c.Runtime.Image == "" {
		c.Runtime.Image = node.DefaultImage
	}
	if c.Runtime.ReceiverSettle == "" {
		c.Runtime.ReceiverSettle = orchestrator.DefaultReceiverSettle.String()
	}
	if c.Runtime.MinDrain == "" {
		c.Runtime.MinDrain = orchestrator.DefaultMinDrain.String()
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "output"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

type Durations struct {
	ReceiverSettle time.Duration
	MinDrain       time.Duration
}

func (c *Config) Durations() (Durations, error) {
	var d Durations
	var err error
	if d.ReceiverSettle, err = time.ParseDuration(c.Runtime.ReceiverSettle); err != nil {
		return d, fmt.Errorf("receiver_settle: %w", err)
	}
	if d.MinDrain, err = time.ParseDuration(c.Runtime.MinDrain); err != nil {
		return d, fmt.Errorf("min_drain: %w", err)
	}
	return d, nil
}
