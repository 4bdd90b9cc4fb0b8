package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kvtrace/keyloc/internal/model"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:     "no variables",
			input:    "hello world",
			envVars:  nil,
			expected: "hello world",
		},
		{
			name:     "simple variable",
			input:    "path: ${TRACE_PATH}",
			envVars:  map[string]string{"TRACE_PATH": "/data/trace.csv"},
			expected: "path: /data/trace.csv",
		},
		{
			name:     "variable with default - env set",
			input:    "port: ${MY_PORT:-5432}",
			envVars:  map[string]string{"MY_PORT": "3306"},
			expected: "port: 3306",
		},
		{
			name:     "variable with default - env not set",
			input:    "port: ${MY_PORT:-5432}",
			envVars:  nil,
			expected: "port: 5432",
		},
		{
			name:     "variable without default - env not set",
			input:    "password: ${MY_PASSWORD}",
			envVars:  nil,
			expected: "password: ",
		},
		{
			name:     "multiple variables",
			input:    "host: ${HOST:-localhost}, port: ${PORT:-5432}",
			envVars:  map[string]string{"HOST": "db.example.com"},
			expected: "host: db.example.com, port: 5432",
		},
		{
			name:     "empty default value",
			input:    "value: ${EMPTY:-}",
			envVars:  nil,
			expected: "value: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"TRACE_PATH", "MY_PORT", "MY_PASSWORD", "HOST", "PORT", "EMPTY"} {
				if _, set := tt.envVars[k]; !set {
					t.Setenv(k, "")
					os.Unsetenv(k)
				}
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	// Check input defaults
	if cfg.Input.Type != InputFile {
		t.Errorf("Input.Type = %q, want %q", cfg.Input.Type, InputFile)
	}
	if cfg.Input.Format != "csv" {
		t.Errorf("Input.Format = %q, want %q", cfg.Input.Format, "csv")
	}
	if cfg.Input.Compression != "auto" {
		t.Errorf("Input.Compression = %q, want %q", cfg.Input.Compression, "auto")
	}

	// Check analysis defaults
	if cfg.Analysis.MaxTimestampBuckets != 1000 {
		t.Errorf("Analysis.MaxTimestampBuckets = %d, want %d", cfg.Analysis.MaxTimestampBuckets, 1000)
	}
	if cfg.Analysis.MaxKeyBuckets != 1_000_000_000 {
		t.Errorf("Analysis.MaxKeyBuckets = %d, want %d", cfg.Analysis.MaxKeyBuckets, 1_000_000_000)
	}
	if cfg.Analysis.LocalityWindowSec != 600 {
		t.Errorf("Analysis.LocalityWindowSec = %d, want %d", cfg.Analysis.LocalityWindowSec, 600)
	}
	if cfg.Analysis.TargetTableID != nil {
		t.Error("Analysis.TargetTableID should stay unset")
	}

	// Check output defaults
	if cfg.Output.Dir != "." {
		t.Errorf("Output.Dir = %q, want %q", cfg.Output.Dir, ".")
	}
	if cfg.Output.Width != 2048 || cfg.Output.Height != 1536 {
		t.Errorf("Output size = %dx%d, want 2048x1536", cfg.Output.Width, cfg.Output.Height)
	}

	// Check notifier defaults
	if cfg.Notifier.Type != "console" {
		t.Errorf("Notifier.Type = %q, want %q", cfg.Notifier.Type, "console")
	}
	if cfg.Notifier.Retries != 3 {
		t.Errorf("Notifier.Retries = %d, want %d", cfg.Notifier.Retries, 3)
	}

	// Check server defaults
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
}

func TestApplyDefaults_S3Path(t *testing.T) {
	cfg := &Config{Input: InputConfig{Path: "s3://traces/2024/trace.csv.zst"}}
	applyDefaults(cfg)

	if cfg.Input.Type != InputS3 {
		t.Errorf("Input.Type = %q, want %q", cfg.Input.Type, InputS3)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("KEYLOC_TRACE", "/data/trace.csv.gz")

	path := filepath.Join(t.TempDir(), "keyloc.yaml")
	content := `
input:
  path: ${KEYLOC_TRACE}
analysis:
  target_table_id: 7
  max_timestamp_buckets: 500
  statistics:
    key_access_count: true
    locality_over_time: true
output:
  dir: /tmp/out
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Input.Path != "/data/trace.csv.gz" {
		t.Errorf("Input.Path = %q, want expanded env value", cfg.Input.Path)
	}
	if cfg.Analysis.TargetTableID == nil || *cfg.Analysis.TargetTableID != 7 {
		t.Errorf("Analysis.TargetTableID = %v, want 7", cfg.Analysis.TargetTableID)
	}
	if cfg.Analysis.MaxTimestampBuckets != 500 {
		t.Errorf("Analysis.MaxTimestampBuckets = %d, want 500", cfg.Analysis.MaxTimestampBuckets)
	}
	if cfg.Analysis.MaxKeyBuckets != 1_000_000_000 {
		t.Errorf("Analysis.MaxKeyBuckets = %d, want default", cfg.Analysis.MaxKeyBuckets)
	}

	enabled := cfg.Analysis.Statistics.Enabled()
	want := []model.Statistic{model.StatAccessCount, model.StatLocalityOverTime}
	if len(enabled) != len(want) {
		t.Fatalf("Enabled() = %v, want %v", enabled, want)
	}
	for i := range want {
		if enabled[i] != want[i] {
			t.Errorf("Enabled()[%d] = %s, want %s", i, enabled[i], want[i])
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestConfig_Validate(t *testing.T) {
	tableID := uint64(7)

	valid := func() Config {
		cfg := Config{
			Input:    InputConfig{Path: "trace.csv"},
			Analysis: AnalysisConfig{TargetTableID: &tableID},
		}
		applyDefaults(&cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid config with console notifier",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "valid config with wecom notifier",
			mutate: func(c *Config) {
				c.Notifier.Type = "wecom"
				c.Notifier.WebhookURL = "https://example.com/webhook"
			},
			wantErr: false,
		},
		{
			name:    "missing target table",
			mutate:  func(c *Config) { c.Analysis.TargetTableID = nil },
			wantErr: true,
		},
		{
			name:    "missing input path",
			mutate:  func(c *Config) { c.Input.Path = "" },
			wantErr: true,
		},
		{
			name:    "s3 type without s3 url",
			mutate:  func(c *Config) { c.Input.Type = InputS3 },
			wantErr: true,
		},
		{
			name:    "postgres input",
			mutate:  func(c *Config) { c.Input.Type = InputPostgres; c.Input.Path = "" },
			wantErr: false,
		},
		{
			name:    "invalid input type",
			mutate:  func(c *Config) { c.Input.Type = "kafka" },
			wantErr: true,
		},
		{
			name:    "invalid format",
			mutate:  func(c *Config) { c.Input.Format = "parquet" },
			wantErr: true,
		},
		{
			name:    "invalid compression",
			mutate:  func(c *Config) { c.Input.Compression = "lz4" },
			wantErr: true,
		},
		{
			name:    "invalid notifier type",
			mutate:  func(c *Config) { c.Notifier.Type = "invalid" },
			wantErr: true,
		},
		{
			name:    "wecom without webhook URL",
			mutate:  func(c *Config) { c.Notifier.Type = "wecom" },
			wantErr: true,
		},
		{
			name:    "invalid retry delay",
			mutate:  func(c *Config) { c.Notifier.RetryDelay = "soon" },
			wantErr: true,
		},
		{
			name:    "invalid timezone",
			mutate:  func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" },
			wantErr: true,
		},
		{
			name:    "cron with stdin",
			mutate:  func(c *Config) { c.Input.Path = "-"; c.Schedule.Cron = "0 0 * * * *" },
			wantErr: true,
		},
		{
			name:    "zero image size",
			mutate:  func(c *Config) { c.Output.Width = 0 },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_ReportsAllErrors(t *testing.T) {
	cfg := Config{}
	applyDefaults(&cfg)
	cfg.Notifier.Type = "pager"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	msg := err.Error()
	for _, want := range []string{"input.path", "analysis.target_table_id", "notifier.type"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q should mention %s", msg, want)
		}
	}
}

func TestConfig_Validate_ResolvesLocation(t *testing.T) {
	tableID := uint64(1)
	cfg := Config{
		Input:    InputConfig{Path: "trace.csv"},
		Analysis: AnalysisConfig{TargetTableID: &tableID},
		Schedule: ScheduleConfig{Timezone: "Asia/Shanghai"},
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Schedule.Location == nil || cfg.Schedule.Location.String() != "Asia/Shanghai" {
		t.Errorf("Schedule.Location = %v, want Asia/Shanghai", cfg.Schedule.Location)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	if dsn := cfg.DSN(); dsn != expected {
		t.Errorf("DSN() = %q, want %q", dsn, expected)
	}
}
