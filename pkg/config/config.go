package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the settings for the tracker CLI and runner
type Config struct {
	DataDir   string         `yaml:"dataDir"`
	Logging   LoggingConfig  `yaml:"logging"`
	Run       RunConfig      `yaml:"run"`
	Defaults  DefaultsConfig `yaml:"defaults"`
	Anomalies []AnomalyRule  `yaml:"anomalies"`
	Storage   StorageConfig  `yaml:"storage"`
	Metrics   MetricsConfig  `yaml:"metrics"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RunConfig controls run pacing
type RunConfig struct {
	BatchSize int `yaml:"batchSize"` // report rows per reconciliation batch
	Workers   int `yaml:"workers"`   // networks reconciled in parallel
}

// DefaultsConfig holds the values given to newly tracked cases
type DefaultsConfig struct {
	IntExt        string `yaml:"intExt"`
	FaultCategory string `yaml:"faultCategory"`
	UnknownNEType string `yaml:"unknownNEType"`
}

// AnomalyRule marks a node NotRunProperly when one of its OPEN cases matches.
// A rule matches on TestCaseID equality or on IssueContains as a
// case-insensitive substring of the case's issue or description text.
type AnomalyRule struct {
	Code          string `yaml:"code"`
	Category      string `yaml:"category"`
	Remediation   string `yaml:"remediation"`
	TestCaseID    string `yaml:"testCaseId"`
	IssueContains string `yaml:"issueContains"`
}

// StorageConfig controls the tracker store
type StorageConfig struct {
	SnapshotRetention int `yaml:"snapshotRetention"` // 0 keeps every snapshot
}

// MetricsConfig controls metrics export
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Load reads a YAML config file on top of the defaults and applies
// HCTRACKER_* environment overrides. An empty path falls back to
// $HCTRACKER_CONFIG, and then to defaults only.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("HCTRACKER_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DataDir: "./hctracker-data",
		Logging: LoggingConfig{Level: "info", JSON: false},
		Run: RunConfig{
			BatchSize: 5000,
			Workers:   4,
		},
		Defaults: DefaultsConfig{
			IntExt:        "Int",
			FaultCategory: "TBD",
			UnknownNEType: "Unknown",
		},
		Anomalies: DefaultAnomalies(),
	}
}

// DefaultAnomalies returns the three diagnostic signatures that mean a
// health check did not run properly on a node
func DefaultAnomalies() []AnomalyRule {
	return []AnomalyRule{
		{
			Code:          "environment-mismatch",
			Category:      "Environment mismatch",
			Remediation:   "Node environment does not match the health-check profile; align the NE release with the check package and rerun",
			IssueContains: "environment mismatch",
		},
		{
			Code:          "session-interrupted",
			Category:      "Session interrupted",
			Remediation:   "Health-check session was interrupted; verify node reachability and rerun the check",
			IssueContains: "session interrupted",
		},
		{
			Code:          "shell-unavailable",
			Category:      "Shell unavailable",
			Remediation:   "Diagnostic shell could not be opened; check shell access and credentials on the node",
			IssueContains: "shell unavailable",
		},
	}
}

// Validate rejects settings the runner cannot work with
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("dataDir must be set")
	}
	if c.Run.BatchSize <= 0 {
		return fmt.Errorf("run.batchSize must be positive, got %d", c.Run.BatchSize)
	}
	if c.Run.Workers <= 0 {
		return fmt.Errorf("run.workers must be positive, got %d", c.Run.Workers)
	}
	if c.Storage.SnapshotRetention < 0 {
		return fmt.Errorf("storage.snapshotRetention must not be negative")
	}
	for i, a := range c.Anomalies {
		if a.Code == "" {
			return fmt.Errorf("anomalies[%d]: code must be set", i)
		}
		if a.TestCaseID == "" && a.IssueContains == "" {
			return fmt.Errorf("anomaly %s: one of testCaseId or issueContains must be set", a.Code)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HCTRACKER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("HCTRACKER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HCTRACKER_LOG_FORMAT"); v != "" {
		cfg.Logging.JSON = strings.EqualFold(v, "json")
	}
	if v := os.Getenv("HCTRACKER_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.BatchSize = n
		}
	}
	if v := os.Getenv("HCTRACKER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.Workers = n
		}
	}
	if v := os.Getenv("HCTRACKER_SNAPSHOT_RETENTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.SnapshotRetention = n
		}
	}
	if v := os.Getenv("HCTRACKER_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
}
