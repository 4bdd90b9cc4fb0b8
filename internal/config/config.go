// Package config provides configuration loading and management for keyloc.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kvtrace/keyloc/internal/model"
)

// Config represents the complete application configuration.
type Config struct {
	Input    InputConfig    `yaml:"input"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Output   OutputConfig   `yaml:"output"`
	Notifier NotifierConfig `yaml:"notifier"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Input source types.
const (
	InputFile     = "file"
	InputS3       = "s3"
	InputPostgres = "postgres"
)

// InputConfig describes where the trace is read from.
type InputConfig struct {
	// Type is one of file, s3, postgres. Empty means file, or s3 for s3:// paths.
	Type string `yaml:"type"`

	// Path is a file path, a glob, "-" for stdin, or an s3://bucket/key URL.
	Path string `yaml:"path"`

	// Format is csv or jsonl.
	Format string `yaml:"format"`

	// Compression is auto, none, gzip, bzip2, xz or zstd.
	Compression string `yaml:"compression"`

	S3       S3Config       `yaml:"s3"`
	Database DatabaseConfig `yaml:"database"`
}

// S3Config holds S3 client settings for s3:// inputs.
type S3Config struct {
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

// DatabaseConfig holds PostgreSQL connection settings for postgres inputs.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	// Query selects (table_id, key, ts) rows in trace order; $1 is the target table id.
	Query string `yaml:"query"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// AnalysisConfig defines the bucketing ceilings and the statistics to compute.
type AnalysisConfig struct {
	// TargetTableID is required; records of other tables are skipped.
	TargetTableID *uint64 `yaml:"target_table_id"`

	MaxTimestampBuckets uint64 `yaml:"max_timestamp_buckets"`
	MaxKeyBuckets       uint64 `yaml:"max_key_buckets"`

	// LocalityWindowSec is the trailing window of the uniqueness-over-time statistic.
	LocalityWindowSec uint64 `yaml:"locality_window_sec"`

	Statistics StatisticsConfig `yaml:"statistics"`
}

// StatisticsConfig toggles each statistic.
type StatisticsConfig struct {
	AppearanceCDF    bool `yaml:"key_appearance_cdf"`
	AccessCount      bool `yaml:"key_access_count"`
	TimeSeries       bool `yaml:"key_time_series"`
	ReusePeriod      bool `yaml:"key_reuse_period"`
	LocalityOverTime bool `yaml:"locality_over_time"`
	TimeSpan         bool `yaml:"key_time_span"`
}

// Enabled returns the selected statistics in run order.
func (s StatisticsConfig) Enabled() []model.Statistic {
	selected := map[model.Statistic]bool{
		model.StatAppearanceCDF:    s.AppearanceCDF,
		model.StatAccessCount:      s.AccessCount,
		model.StatTimeSeries:       s.TimeSeries,
		model.StatReusePeriod:      s.ReusePeriod,
		model.StatLocalityOverTime: s.LocalityOverTime,
		model.StatTimeSpan:         s.TimeSpan,
	}
	var enabled []model.Statistic
	for _, st := range model.Statistics {
		if selected[st] {
			enabled = append(enabled, st)
		}
	}
	return enabled
}

// OutputConfig controls where and how charts are written.
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`

	// XLSX additionally exports every computed series to a workbook.
	XLSX bool `yaml:"xlsx"`
}

// NotifierConfig holds report delivery settings.
type NotifierConfig struct {
	Type       string `yaml:"type"`
	WebhookURL string `yaml:"webhook_url"`
	Retries    int    `yaml:"retries"`
	RetryDelay string `yaml:"retry_delay"`
}

// RetryDelayParsed returns the parsed retry delay duration.
func (n *NotifierConfig) RetryDelayParsed() (time.Duration, error) {
	return time.ParseDuration(n.RetryDelay)
}

// ScheduleConfig defines when repeated runs happen. An empty Cron runs once.
type ScheduleConfig struct {
	Cron            string `yaml:"cron"`
	Timezone        string `yaml:"timezone"`
	AnalysisTimeout string `yaml:"analysis_timeout"`

	// Location is resolved from Timezone by Validate.
	Location *time.Location `yaml:"-"`
}

// AnalysisTimeoutParsed returns the parsed per-run timeout.
func (s *ScheduleConfig) AnalysisTimeoutParsed() (time.Duration, error) {
	return time.ParseDuration(s.AnalysisTimeout)
}

// ServerConfig holds HTTP server settings for scheduled mode.
type ServerConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`

	// DeepCheck makes /healthz ping sources that support it, such as postgres.
	DeepCheck bool `yaml:"deep_check"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvVars expands ${VAR} and ${VAR:-default} patterns in the input string.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) > 2 {
			defaultVal = parts[2]
		}

		if val, exists := os.LookupEnv(varName); exists {
			return val
		}
		return defaultVal
	})
}

// applyDefaults sets default values for any unset configuration fields.
func applyDefaults(cfg *Config) {
	// Input defaults
	if cfg.Input.Type == "" {
		if strings.HasPrefix(cfg.Input.Path, "s3://") {
			cfg.Input.Type = InputS3
		} else {
			cfg.Input.Type = InputFile
		}
	}
	if cfg.Input.Format == "" {
		cfg.Input.Format = "csv"
	}
	if cfg.Input.Compression == "" {
		cfg.Input.Compression = "auto"
	}
	if cfg.Input.Database.Host == "" {
		cfg.Input.Database.Host = "127.0.0.1"
	}
	if cfg.Input.Database.Port == 0 {
		cfg.Input.Database.Port = 5432
	}
	if cfg.Input.Database.SSLMode == "" {
		cfg.Input.Database.SSLMode = "disable"
	}
	if cfg.Input.Database.Query == "" {
		cfg.Input.Database.Query = "SELECT table_id, key, ts FROM kv_trace WHERE table_id = $1 ORDER BY seq"
	}

	// Analysis defaults
	if cfg.Analysis.MaxTimestampBuckets == 0 {
		cfg.Analysis.MaxTimestampBuckets = 1000
	}
	if cfg.Analysis.MaxKeyBuckets == 0 {
		cfg.Analysis.MaxKeyBuckets = 1_000_000_000
	}
	if cfg.Analysis.LocalityWindowSec == 0 {
		cfg.Analysis.LocalityWindowSec = 600
	}

	// Output defaults
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "."
	}
	if cfg.Output.Width == 0 {
		cfg.Output.Width = 2048
	}
	if cfg.Output.Height == 0 {
		cfg.Output.Height = 1536
	}

	// Notifier defaults
	if cfg.Notifier.Type == "" {
		cfg.Notifier.Type = "console"
	}
	if cfg.Notifier.Retries == 0 {
		cfg.Notifier.Retries = 3
	}
	if cfg.Notifier.RetryDelay == "" {
		cfg.Notifier.RetryDelay = "1s"
	}

	// Schedule defaults
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "UTC"
	}
	if cfg.Schedule.AnalysisTimeout == "" {
		cfg.Schedule.AnalysisTimeout = "30m"
	}

	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks that the configuration is valid and resolves Schedule.Location.
func (c *Config) Validate() error {
	var errs []string

	// Validate input
	switch c.Input.Type {
	case InputFile:
		if c.Input.Path == "" {
			errs = append(errs, "input.path is required")
		}
	case InputS3:
		if !strings.HasPrefix(c.Input.Path, "s3://") {
			errs = append(errs, "input.path must be an s3://bucket/key URL when type is 's3'")
		}
	case InputPostgres:
		if c.Input.Database.Host == "" {
			errs = append(errs, "input.database.host is required when type is 'postgres'")
		}
	default:
		errs = append(errs, "input.type must be one of: file, s3, postgres")
	}
	validFormats := map[string]bool{"csv": true, "jsonl": true}
	if !validFormats[c.Input.Format] {
		errs = append(errs, "input.format must be one of: csv, jsonl")
	}
	validCompression := map[string]bool{"auto": true, "none": true, "gzip": true, "bzip2": true, "xz": true, "zstd": true}
	if !validCompression[c.Input.Compression] {
		errs = append(errs, "input.compression must be one of: auto, none, gzip, bzip2, xz, zstd")
	}

	// Validate analysis
	if c.Analysis.TargetTableID == nil {
		errs = append(errs, "analysis.target_table_id is required")
	}
	if c.Analysis.MaxTimestampBuckets < 1 {
		errs = append(errs, "analysis.max_timestamp_buckets must be at least 1")
	}
	if c.Analysis.MaxKeyBuckets < 1 {
		errs = append(errs, "analysis.max_key_buckets must be at least 1")
	}

	// Validate output
	if c.Output.Width < 1 || c.Output.Height < 1 {
		errs = append(errs, "output.width and output.height must be positive")
	}

	// Validate notifier type
	validNotifierTypes := map[string]bool{"wecom": true, "console": true}
	if !validNotifierTypes[c.Notifier.Type] {
		errs = append(errs, "notifier.type must be one of: wecom, console")
	}
	if c.Notifier.Type == "wecom" && c.Notifier.WebhookURL == "" {
		errs = append(errs, "notifier.webhook_url is required when type is 'wecom'")
	}
	if _, err := c.Notifier.RetryDelayParsed(); err != nil {
		errs = append(errs, fmt.Sprintf("notifier.retry_delay is invalid: %v", err))
	}

	// Validate schedule
	if _, err := c.Schedule.AnalysisTimeoutParsed(); err != nil {
		errs = append(errs, fmt.Sprintf("schedule.analysis_timeout is invalid: %v", err))
	}
	if loc, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("schedule.timezone is invalid: %v", err))
	} else {
		c.Schedule.Location = loc
	}
	if c.Input.Path == "-" && c.Schedule.Cron != "" {
		errs = append(errs, "schedule.cron cannot be used with stdin input")
	}

	// Validate logging
	validFormatsLog := map[string]bool{"text": true, "json": true}
	if !validFormatsLog[c.Logging.Format] {
		errs = append(errs, "logging.format must be one of: text, json")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
