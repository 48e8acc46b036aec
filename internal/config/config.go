package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/experiment"
	"github.com/san-kum/ecosim/internal/telemetry"
)

const (
	DefaultModel        = "lake"
	DefaultSteps        = 365
	DefaultDt           = 1.0
	DefaultStepDuration = 24 * time.Hour
)

var DefaultStartDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

type Config struct {
	Model        string             `yaml:"model"`
	Steps        int                `yaml:"steps"`
	Dt           float64            `yaml:"dt"`
	StartDate    time.Time          `yaml:"start_date"`
	StepDuration time.Duration      `yaml:"step_duration"`
	BoundsCheck  bool               `yaml:"bounds_check"`
	TestForNaN   bool               `yaml:"test_for_nan"`
	Profile      bool               `yaml:"profile"`
	Workers      int                `yaml:"workers"`
	Parameters   map[string]float64 `yaml:"parameters,omitempty"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Namespace   string `yaml:"namespace"`
	MetricsFile string `yaml:"metrics_file,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:        DefaultModel,
		Steps:        DefaultSteps,
		Dt:           DefaultDt,
		StartDate:    DefaultStartDate,
		StepDuration: DefaultStepDuration,
		BoundsCheck:  true,
		Telemetry: TelemetryConfig{
			Namespace: telemetry.DefaultConfig().Namespace,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Run returns the engine configuration, validated.
func (c *Config) Run() (dynamo.Config, error) {
	run := dynamo.Config{
		Steps:        c.Steps,
		Dt:           c.Dt,
		StartDate:    c.StartDate,
		StepDuration: c.StepDuration,
		BoundsCheck:  c.BoundsCheck,
		TestForNaN:   c.TestForNaN,
		Profile:      c.Profile,
	}
	if err := run.Validate(); err != nil {
		return dynamo.Config{}, err
	}
	return run, nil
}

func (c *Config) Experiment() (experiment.Config, error) {
	run, err := c.Run()
	if err != nil {
		return experiment.Config{}, err
	}
	return experiment.Config{Model: c.Model, Run: run, Overrides: c.Parameters}, nil
}

func (t TelemetryConfig) Metrics() telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.Enabled = t.Enabled || t.MetricsFile != ""
	if t.Namespace != "" {
		cfg.Namespace = t.Namespace
	}
	return cfg
}
