package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gridsec/evcorr/internal/utils"
)

// Config captures everything required to run the correlation engine. All
// input locations and column selections live here; components never read
// paths from anywhere else.
type Config struct {
	Logging   LoggingConfig    `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Store     StoreConfig      `yaml:"store"`
	Watch     WatchConfig      `yaml:"watch"`
	Output    OutputConfig     `yaml:"output"`
	Analysis  AnalysisConfig   `yaml:"analysis"`
	Sidecar   SidecarConfig    `yaml:"sidecar"`
	Scenarios []ScenarioConfig `yaml:"scenarios"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// StoreConfig controls result persistence.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WatchConfig controls dataset-directory watching.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// OutputConfig names the artifact destination.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// AnalysisConfig groups detector, aligner and correlator tuning.
type AnalysisConfig struct {
	WindowSize        float64 `yaml:"windowSize"`
	ConfirmationSize  float64 `yaml:"confirmationSize"`
	Sigmas            float64 `yaml:"sigmas"`
	Tolerance         float64 `yaml:"tolerance"`
	RangeStart        int     `yaml:"rangeStart"`
	RangeEnd          int     `yaml:"rangeEnd"`
	MaxLag            int     `yaml:"maxLag"`
	MinSamples        int     `yaml:"minSamples"`
	ForwardFillMaxGap int     `yaml:"forwardFillMaxGap"`
	Workers           int     `yaml:"workers"`
}

// SidecarConfig optionally pins attack starts from a previous run.
type SidecarConfig struct {
	Path string `yaml:"path"`
}

// LayerSourceConfig names one layer's capture file and columns.
type LayerSourceConfig struct {
	Path         string   `yaml:"path"`
	TimeColumn   string   `yaml:"timeColumn"`
	TimeUnit     string   `yaml:"timeUnit"`
	ValueColumns []string `yaml:"valueColumns"`
}

// BaselineConfig describes where benign statistics come from: either a
// benign capture file (same column layout) or explicit mean/stddev.
type BaselineConfig struct {
	Source *LayerSourceConfig `yaml:"source"`
	Mean   *float64           `yaml:"mean"`
	StdDev *float64           `yaml:"stddev"`
}

// ScenarioConfig wires one attack capture into the engine.
type ScenarioConfig struct {
	Name       string                       `yaml:"name"`
	HasNetwork bool                         `yaml:"hasNetwork"`
	Layers     map[string]LayerSourceConfig `yaml:"layers"`
	Baselines  map[string]BaselineConfig    `yaml:"baselines"`
}

// Load initialises Config from a YAML file and optional environment
// overrides, validating scenario wiring before returning.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("EVCORR_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", JSON: false},
		Metrics: MetricsConfig{Address: ":2112"},
		Store:   StoreConfig{Enabled: false, Path: "evcorr.db"},
		Watch:   WatchConfig{Enabled: false, Debounce: 2 * time.Second},
		Output:  OutputConfig{Dir: "results"},
		Analysis: AnalysisConfig{
			WindowSize:        5,
			ConfirmationSize:  10,
			Sigmas:            2,
			Tolerance:         2.5,
			RangeStart:        0,
			RangeEnd:          60,
			MaxLag:            10,
			MinSamples:        3,
			ForwardFillMaxGap: 5,
			Workers:           4,
		},
	}
}

func (c *Config) validate() error {
	for _, scenario := range c.Scenarios {
		if scenario.Name == "" {
			return fmt.Errorf("scenario with empty name")
		}
		required := []string{"host", "power"}
		if scenario.HasNetwork {
			required = append(required, "network")
		}
		for _, layer := range required {
			src, ok := scenario.Layers[layer]
			if !ok || src.Path == "" {
				return fmt.Errorf("scenario %q: layer %q has no capture file configured", scenario.Name, layer)
			}
			if src.TimeColumn == "" {
				return fmt.Errorf("scenario %q: layer %q has no time column configured", scenario.Name, layer)
			}
			if len(src.ValueColumns) == 0 {
				return fmt.Errorf("scenario %q: layer %q has no value columns configured", scenario.Name, layer)
			}
			if src.TimeUnit != "" && src.TimeUnit != string(utils.UnitSeconds) && src.TimeUnit != string(utils.UnitMillis) {
				return fmt.Errorf("scenario %q: layer %q has unknown time unit %q", scenario.Name, layer, src.TimeUnit)
			}
		}
		for layer, baseline := range scenario.Baselines {
			if baseline.Source == nil && (baseline.Mean == nil || baseline.StdDev == nil) {
				return fmt.Errorf("scenario %q: baseline for %q needs a source file or explicit mean and stddev", scenario.Name, layer)
			}
		}
	}
	if c.Analysis.RangeEnd <= c.Analysis.RangeStart {
		return fmt.Errorf("analysis range end must exceed range start")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EVCORR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EVCORR_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("EVCORR_METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Address = v
	}
	if v := os.Getenv("EVCORR_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("EVCORR_STORE_PATH"); v != "" {
		cfg.Store.Path = v
		cfg.Store.Enabled = true
	}
	if v := os.Getenv("EVCORR_STORE_ENABLED"); v != "" {
		cfg.Store.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("EVCORR_SIDECAR_PATH"); v != "" {
		cfg.Sidecar.Path = v
	}
	if v := os.Getenv("EVCORR_WATCH_ENABLED"); v != "" {
		cfg.Watch.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("EVCORR_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Analysis.Workers = n
		}
	}
	if v := os.Getenv("EVCORR_MAX_LAG"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Analysis.MaxLag = n
		}
	}
	if v := os.Getenv("EVCORR_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Analysis.Tolerance = f
		}
	}
}
