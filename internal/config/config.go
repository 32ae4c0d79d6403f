// Package config provides unified configuration loading for pagebook.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for pagebook.
type Config struct {
	Render RenderConfig `yaml:"render"`
	Batch  BatchConfig  `yaml:"batch"`
	Lazy   LazyConfig   `yaml:"lazy"`
	OCR    OCRConfig    `yaml:"ocr"`
	Log    LogConfig    `yaml:"log"`
}

// RenderConfig holds rasterization settings.
type RenderConfig struct {
	Scale        float64 `yaml:"scale"`
	ProbeScale   float64 `yaml:"probe_scale"`
	ProbeSamples int     `yaml:"probe_samples"`
	Format       string  `yaml:"format"` // jpeg or png
	JPEGQuality  int     `yaml:"jpeg_quality"`
}

// BatchConfig holds parallel batch settings.
type BatchConfig struct {
	MaxWorkers int `yaml:"max_workers"`
	// Parallelism overrides the detected CPU count when > 0.
	Parallelism int `yaml:"parallelism"`
}

// LazyConfig holds visibility-driven loading settings.
type LazyConfig struct {
	Margin        float64 `yaml:"margin"`
	MaxInFlight   int     `yaml:"max_in_flight"` // 0 = unbounded
	ColumnWidth   float64 `yaml:"column_width"`
	Gap           float64 `yaml:"gap"`
	PrefetchPages int     `yaml:"prefetch_pages"`
}

// OCRConfig holds text recognition settings.
type OCRConfig struct {
	Language    string `yaml:"language"`
	Workers     int    `yaml:"workers"` // 0 = max(1, parallelism-1)
	RequireCrop bool   `yaml:"require_crop"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the configuration the original viewer used.
func DefaultConfig() *Config {
	return &Config{
		Render: RenderConfig{
			Scale:        1.5,
			ProbeScale:   0.1,
			ProbeSamples: 5,
			Format:       "jpeg",
			JPEGQuality:  80,
		},
		Batch: BatchConfig{
			MaxWorkers: 8,
		},
		Lazy: LazyConfig{
			Margin:        400,
			ColumnWidth:   176,
			Gap:           16,
			PrefetchPages: 10,
		},
		OCR: OCRConfig{
			Language:    "eng",
			RequireCrop: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Render.Scale <= 0 {
		return fmt.Errorf("render scale must be positive, got %v", c.Render.Scale)
	}
	if c.Render.ProbeScale <= 0 || c.Render.ProbeScale > c.Render.Scale {
		return fmt.Errorf("probe scale must be in (0, %v], got %v", c.Render.Scale, c.Render.ProbeScale)
	}
	if c.Render.ProbeSamples < 1 {
		return fmt.Errorf("probe samples must be at least 1")
	}
	if c.Render.Format != "jpeg" && c.Render.Format != "png" {
		return fmt.Errorf("invalid render format: %s", c.Render.Format)
	}
	if c.Render.JPEGQuality < 1 || c.Render.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be between 1 and 100, got %d", c.Render.JPEGQuality)
	}
	if c.Batch.MaxWorkers < 1 {
		return fmt.Errorf("batch max_workers must be at least 1")
	}
	if c.Batch.Parallelism < 0 || c.OCR.Workers < 0 || c.Lazy.MaxInFlight < 0 {
		return fmt.Errorf("worker counts must not be negative")
	}
	if c.Lazy.Margin < 0 {
		return fmt.Errorf("lazy margin must not be negative")
	}
	if c.Lazy.ColumnWidth <= 0 {
		return fmt.Errorf("lazy column width must be positive")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PAGEBOOK_RENDER_SCALE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Render.Scale = f
		}
	}

	if v := os.Getenv("PAGEBOOK_RENDER_FORMAT"); v != "" {
		cfg.Render.Format = strings.ToLower(v)
	}

	if v := os.Getenv("PAGEBOOK_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Batch.Parallelism = n
		}
	}

	if v := os.Getenv("PAGEBOOK_MAX_IN_FLIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Lazy.MaxInFlight = n
		}
	}

	if v := os.Getenv("PAGEBOOK_OCR_LANGUAGE"); v != "" {
		cfg.OCR.Language = v
	}

	if v := os.Getenv("PAGEBOOK_OCR_REQUIRE_CROP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.OCR.RequireCrop = b
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
