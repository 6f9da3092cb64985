// Package config loads service settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// placeholderOpenAIKey ships in sample env files and means "not set".
const placeholderOpenAIKey = "YOUR_OPENAI_API_KEY_HERE"

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Census    CensusConfig    `yaml:"census"`
	Narrative NarrativeConfig `yaml:"narrative"`
	Blob      BlobConfig      `yaml:"blob"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	HealthTimeout   string   `yaml:"health_timeout"`
	ZipDataTimeout  string   `yaml:"zip_data_timeout"`
	AIReportTimeout string   `yaml:"ai_report_timeout"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
}

// CensusConfig configures the statistical sources.
type CensusConfig struct {
	APIKey     string `yaml:"api_key"`
	ACS5URL    string `yaml:"acs5_url"`
	SubjectURL string `yaml:"subject_url"`
	DHCURL     string `yaml:"dhc_url"`
	// Concurrency caps in-flight per-key queries for each source. Zero means
	// one query per key at once.
	Concurrency int `yaml:"concurrency"`
}

// NarrativeConfig selects the language model provider.
type NarrativeConfig struct {
	Provider      string `yaml:"provider"` // openai, gemini
	OpenAIKey     string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`
	GeminiKey     string `yaml:"gemini_api_key"`
	GeminiBaseURL string `yaml:"gemini_base_url"`
	GeminiModel   string `yaml:"gemini_model"`
}

// BlobConfig selects where report artifacts are written.
type BlobConfig struct {
	Driver      string `yaml:"driver"` // fs, s3, memory
	FSRoot      string `yaml:"fs_root"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	URLExpiry   string `yaml:"url_expiry"`
}

// StoreConfig selects where report metadata is kept.
type StoreConfig struct {
	Driver      string `yaml:"driver"` // memory, sqlite, postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			AllowedOrigins:  []string{"http://localhost:5173"},
			HealthTimeout:   "5s",
			ZipDataTimeout:  "60s",
			AIReportTimeout: "120s",
			ShutdownTimeout: "10s",
		},
		Narrative: NarrativeConfig{
			OpenAIModel: "gpt-4o-mini",
			GeminiModel: "gemini-2.5-flash",
		},
		Blob: BlobConfig{
			Driver:    "fs",
			FSRoot:    "./reportdata",
			URLExpiry: "15m",
		},
		Store: StoreConfig{
			Driver:     "memory",
			SQLitePath: "rockland-reports.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file or an empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("CENSUS_API_KEY"); key != "" {
		c.Census.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && key != placeholderOpenAIKey {
		c.Narrative.OpenAIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Narrative.GeminiKey = key
		if c.Narrative.Provider == "" && c.Narrative.OpenAIKey == "" {
			c.Narrative.Provider = "gemini"
		}
	}
	if c.Narrative.OpenAIKey == placeholderOpenAIKey {
		c.Narrative.OpenAIKey = ""
	}
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		c.Server.AllowedOrigins = splitList(raw)
	}

	setString(&c.Server.Addr, "ROCKLAND_ADDR")
	setString(&c.Logging.Level, "ROCKLAND_LOG_LEVEL")
	setString(&c.Narrative.Provider, "ROCKLAND_NARRATIVE_PROVIDER")
	setString(&c.Blob.Driver, "ROCKLAND_BLOB_DRIVER")
	setString(&c.Blob.FSRoot, "ROCKLAND_BLOB_FS_ROOT")
	setString(&c.Blob.S3Bucket, "ROCKLAND_BLOB_S3_BUCKET")
	setString(&c.Blob.S3Region, "ROCKLAND_BLOB_S3_REGION")
	setString(&c.Blob.S3Endpoint, "ROCKLAND_BLOB_S3_ENDPOINT")
	if raw := os.Getenv("ROCKLAND_BLOB_S3_PATH_STYLE"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			c.Blob.S3PathStyle = v
		}
	}
	setString(&c.Store.Driver, "ROCKLAND_STORE_DRIVER")
	setString(&c.Store.SQLitePath, "ROCKLAND_SQLITE_PATH")
	setString(&c.Store.PostgresDSN, "ROCKLAND_POSTGRES_DSN")
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// NarrativeKeyName names the environment variable that configures the
// selected provider.
func (c *Config) NarrativeKeyName() string {
	n := c.Narrative
	if n.Provider == "gemini" || (n.Provider == "" && n.GeminiKey != "" && n.OpenAIKey == "") {
		return "GEMINI_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// GetHealthTimeout returns the health route deadline.
func (c *Config) GetHealthTimeout() time.Duration {
	return parseDuration(c.Server.HealthTimeout, 5*time.Second)
}

// GetZipDataTimeout returns the dataset route deadline.
func (c *Config) GetZipDataTimeout() time.Duration {
	return parseDuration(c.Server.ZipDataTimeout, 60*time.Second)
}

// GetAIReportTimeout returns the report route deadline.
func (c *Config) GetAIReportTimeout() time.Duration {
	return parseDuration(c.Server.AIReportTimeout, 120*time.Second)
}

// GetShutdownTimeout bounds graceful shutdown.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

// GetURLExpiry returns the lifetime of signed artifact links.
func (c *Config) GetURLExpiry() time.Duration {
	return parseDuration(c.Blob.URLExpiry, 15*time.Minute)
}

func parseDuration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
