package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type FrameConfig struct {
	Interval     time.Duration
	MaxFrameTime time.Duration
	Background   bool
}

type LogConfig struct {
	Level   string
	Console bool
}

type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

type TracingConfig struct {
	Enabled    bool
	TracerName string
}

type Config struct {
	Frame   FrameConfig
	Log     LogConfig
	Metrics MetricsConfig
	Tracing TracingConfig
}

func Default() Config {
	return Config{
		Frame: FrameConfig{
			Interval:     16 * time.Millisecond,
			MaxFrameTime: 16 * time.Millisecond,
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		Metrics: MetricsConfig{
			Namespace: "sigtree",
		},
		Tracing: TracingConfig{
			TracerName: "sigtree",
		},
	}
}

type fileConfig struct {
	Frame struct {
		Interval     string `toml:"interval" yaml:"interval"`
		MaxFrameTime string `toml:"max_frame_time" yaml:"max_frame_time"`
		Background   bool   `toml:"background" yaml:"background"`
	} `toml:"frame" yaml:"frame"`

	Log struct {
		Level   string `toml:"level" yaml:"level"`
		Console bool   `toml:"console" yaml:"console"`
	} `toml:"log" yaml:"log"`

	Metrics struct {
		Enabled   bool   `toml:"enabled" yaml:"enabled"`
		Namespace string `toml:"namespace" yaml:"namespace"`
	} `toml:"metrics" yaml:"metrics"`

	Tracing struct {
		Enabled    bool   `toml:"enabled" yaml:"enabled"`
		TracerName string `toml:"tracer_name" yaml:"tracer_name"`
	} `toml:"tracing" yaml:"tracing"`
}

// Load reads a .toml, .yaml or .yml file. Keys missing from the file keep
// their Default value.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return ParseTOML(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Config{}, fmt.Errorf("load config: unsupported extension %q", ext)
	}
}

func ParseTOML(data []byte) (Config, error) {
	var raw fileConfig
	meta, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse toml config: %w", err)
	}

	return apply(raw, func(section, key string) bool {
		return meta.IsDefined(section, key)
	})
}

func ParseYAML(data []byte) (Config, error) {
	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse yaml config: %w", err)
	}

	var tree map[string]map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return Config{}, fmt.Errorf("parse yaml config: %w", err)
	}

	return apply(raw, func(section, key string) bool {
		_, ok := tree[section][key]
		return ok
	})
}

func apply(raw fileConfig, defined func(section, key string) bool) (Config, error) {
	cfg := Default()

	if defined("frame", "interval") {
		d, err := parseDuration(raw.Frame.Interval)
		if err != nil {
			return Config{}, fmt.Errorf("parse frame.interval: %w", err)
		}
		cfg.Frame.Interval = d
	}

	if defined("frame", "max_frame_time") {
		d, err := parseDuration(raw.Frame.MaxFrameTime)
		if err != nil {
			return Config{}, fmt.Errorf("parse frame.max_frame_time: %w", err)
		}
		cfg.Frame.MaxFrameTime = d
	}

	if defined("frame", "background") {
		cfg.Frame.Background = raw.Frame.Background
	}

	if defined("log", "level") {
		level := strings.ToLower(strings.TrimSpace(raw.Log.Level))
		if level != "" {
			cfg.Log.Level = level
		}
	}

	if defined("log", "console") {
		cfg.Log.Console = raw.Log.Console
	}

	if defined("metrics", "enabled") {
		cfg.Metrics.Enabled = raw.Metrics.Enabled
	}

	if defined("metrics", "namespace") {
		if ns := strings.TrimSpace(raw.Metrics.Namespace); ns != "" {
			cfg.Metrics.Namespace = ns
		}
	}

	if defined("tracing", "enabled") {
		cfg.Tracing.Enabled = raw.Tracing.Enabled
	}

	if defined("tracing", "tracer_name") {
		if name := strings.TrimSpace(raw.Tracing.TracerName); name != "" {
			cfg.Tracing.TracerName = name
		}
	}

	return cfg, nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}

	return d, nil
}
