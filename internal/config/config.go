package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized by both the CLI and the Lambda handler.
// They override whatever the config file says, so containerized runs need
// no file at all.
const (
	EnvSourceDB   = "SOURCE_DB"
	EnvSnapshotID = "SNAPSHOT_ID"
	EnvKMSKeyARN  = "KMS_KEY_ARN"

	EnvPollIntervalSeconds = "POLL_INTERVAL_SECONDS"
	EnvStepTimeoutMinutes  = "STEP_TIMEOUT_MINUTES"
)

// Config matches the structure of the config.yaml file.
type Config struct {
	Version      int           `yaml:"version"`
	Project      Project       `yaml:"project"`
	CLI          CLI           `yaml:"cli"`
	Restore      Restore       `yaml:"restore"`
	Verification Verification  `yaml:"verification"`
	ReportUpload *ReportUpload `yaml:"report_upload,omitempty"`
	Signing      Signing       `yaml:"signing"`
}

type Project struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type CLI struct {
	MachineID string `yaml:"machine_id"`
	ReportDir string `yaml:"report_dir"`
}

// Restore identifies the instance being replaced and the snapshot to
// restore, plus the wait tuning for the polling loops.
type Restore struct {
	SourceDB            string `yaml:"source_db"`
	SnapshotID          string `yaml:"snapshot_id"`
	KMSKeyARN           string `yaml:"kms_key_arn,omitempty"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	TimeoutMinutes      int    `yaml:"timeout_minutes"`
}

// PollInterval returns the poll interval, zero when unset.
func (r Restore) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalSeconds) * time.Second
}

// StepTimeout returns the per-wait timeout, zero when unset.
func (r Restore) StepTimeout() time.Duration {
	return time.Duration(r.TimeoutMinutes) * time.Minute
}

type Verification struct {
	Connect Connect `yaml:"connect"`
}

// Connect configures the optional post-restore connectivity check against
// the final instance endpoint.
type Connect struct {
	Enabled     bool   `yaml:"enabled"`
	User        string `yaml:"user"`
	PasswordEnv string `yaml:"password_env"`
	DBName      string `yaml:"db_name"`
	Port        int    `yaml:"port"`
	MinTables   int    `yaml:"min_tables"`
}

// ReportUpload configures archival of signed run reports.
type ReportUpload struct {
	S3 *S3 `yaml:"s3,omitempty"`
}

type S3 struct {
	Endpoint     string `yaml:"endpoint"`
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	Prefix       string `yaml:"prefix"`
}

type Signing struct {
	PrivateKeyPath string `yaml:"private_key_path"`
}

// Path returns the config file location under the user's home directory.
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".rds-restore", "config.yaml"), nil
}

// Load finds, reads, and parses the configuration file, then applies
// environment overrides.
func Load() (*Config, error) {
	configPath, err := Path()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found at %s. Please run 'rds-restore init'", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("could not read config file at %s: %w", configPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse unmarshals raw YAML config data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// FromEnv builds a configuration from environment variables alone. This is
// the Lambda path: the invocation payload carries no data, everything comes
// from the function's environment.
func FromEnv() (*Config, error) {
	cfg := &Config{Version: 1}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Restore.SourceDB == "" {
		return nil, fmt.Errorf("%s environment variable is not set or empty", EnvSourceDB)
	}
	if cfg.Restore.SnapshotID == "" {
		return nil, fmt.Errorf("%s environment variable is not set or empty", EnvSnapshotID)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvSourceDB); v != "" {
		c.Restore.SourceDB = v
	}
	if v := os.Getenv(EnvSnapshotID); v != "" {
		c.Restore.SnapshotID = v
	}
	if v := os.Getenv(EnvKMSKeyARN); v != "" {
		c.Restore.KMSKeyARN = v
	}
	if v := os.Getenv(EnvPollIntervalSeconds); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvPollIntervalSeconds, v, err)
		}
		c.Restore.PollIntervalSeconds = n
	}
	if v := os.Getenv(EnvStepTimeoutMinutes); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvStepTimeoutMinutes, v, err)
		}
		c.Restore.TimeoutMinutes = n
	}
	return nil
}

// Validate checks that the identifiers a run needs are present.
func (c *Config) Validate() error {
	if c.Restore.SourceDB == "" {
		return fmt.Errorf("restore.source_db is not configured (or set %s)", EnvSourceDB)
	}
	if c.Restore.SnapshotID == "" {
		return fmt.Errorf("restore.snapshot_id is not configured (or set %s)", EnvSnapshotID)
	}
	return nil
}
