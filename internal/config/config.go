// Package config loads runtime settings from an optional YAML file
// with environment variable overrides. Unset values fall back to
// defaults, so a bare binary runs with no config at all.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"draftforge/internal/pipeline"
)

const (
	configPathEnv = "DRAFTFORGE_CONFIG"
	databaseEnv   = "DRAFTFORGE_DB"
	intervalEnv   = "DRAFTFORGE_INTERVAL"
	stuckAfterEnv = "DRAFTFORGE_STUCK_AFTER"
)

// Config holds everything the daemon and the CLI need at startup.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Linker    LinkerConfig    `yaml:"linker"`
}

// DatabaseConfig points at the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig controls the processing loop cadence. Durations are
// Go duration strings ("5s", "1h").
type SchedulerConfig struct {
	Interval   string `yaml:"interval"`
	StuckAfter string `yaml:"stuckAfter"`
}

// PipelineConfig tunes engine behavior.
type PipelineConfig struct {
	MaxRetries int    `yaml:"maxRetries"`
	StartState string `yaml:"startState"`
}

// LinkerConfig configures internal link insertion: phrase -> URL.
type LinkerConfig struct {
	Links    map[string]string `yaml:"links"`
	MaxLinks int               `yaml:"maxLinks"`
}

// Load reads the YAML file at path (or $DRAFTFORGE_CONFIG when path is
// empty), applies environment overrides, and validates the result. A
// missing file is not an error; a present but unreadable one is.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(intervalEnv); v != "" {
		c.Scheduler.Interval = v
	}
	if v := os.Getenv(stuckAfterEnv); v != "" {
		c.Scheduler.StuckAfter = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.Scheduler.Interval); err != nil {
		return fmt.Errorf("scheduler.interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Scheduler.StuckAfter); err != nil {
		return fmt.Errorf("scheduler.stuckAfter: %w", err)
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.maxRetries must be >= 0, got %d", c.Pipeline.MaxRetries)
	}
	if _, err := c.StartState(); err != nil {
		return err
	}
	return nil
}

// Interval returns the parsed scheduler interval.
func (c *Config) Interval() time.Duration {
	d, _ := time.ParseDuration(c.Scheduler.Interval)
	return d
}

// StuckAfter returns the parsed stuck threshold.
func (c *Config) StuckAfter() time.Duration {
	d, _ := time.ParseDuration(c.Scheduler.StuckAfter)
	return d
}

// StartState resolves the state newly approved topics enter the
// pipeline in.
func (c *Config) StartState() (pipeline.State, error) {
	s, err := pipeline.ParseState(c.Pipeline.StartState)
	if err != nil {
		return "", fmt.Errorf("pipeline.startState: %w", err)
	}
	if s != pipeline.StatePending && s != pipeline.StateResearching {
		return "", fmt.Errorf("pipeline.startState: %q is not a valid entry state", s)
	}
	return s, nil
}

func defaultConfig() Config {
	return Config{
		Database:  DatabaseConfig{Path: "draftforge.db"},
		Scheduler: SchedulerConfig{Interval: "5s", StuckAfter: "1h"},
		Pipeline:  PipelineConfig{MaxRetries: 3, StartState: string(pipeline.StatePending)},
		Linker:    LinkerConfig{},
	}
}
