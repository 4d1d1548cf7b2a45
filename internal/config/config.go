// Package config handles application configuration
package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// StorageConfig selects where the lists are persisted
type StorageConfig struct {
	Backend  string `yaml:"backend" env:"SIMPLETASKS_STORAGE_BACKEND"`
	Path     string `yaml:"path" env:"SIMPLETASKS_STORAGE_PATH"`
	BooksKey string `yaml:"books_key" env:"SIMPLETASKS_BOOKS_KEY"`
	TasksKey string `yaml:"tasks_key" env:"SIMPLETASKS_TASKS_KEY"`
}

// OfflineConfig holds offline cache worker settings
type OfflineConfig struct {
	Version     string   `yaml:"version" env:"SIMPLETASKS_CACHE_VERSION"`
	CachePath   string   `yaml:"cache_path" env:"SIMPLETASKS_CACHE_PATH"`
	Upstream    string   `yaml:"upstream" env:"SIMPLETASKS_UPSTREAM"`
	WaitForIdle bool     `yaml:"wait_for_idle" env:"SIMPLETASKS_WAIT_FOR_IDLE"`
	Assets      []string `yaml:"assets" env:"SIMPLETASKS_CACHE_ASSETS" envSeparator:","`
}

// ServerConfig holds settings for `serve`
type ServerConfig struct {
	Addr string `yaml:"addr" env:"SIMPLETASKS_ADDR"`
}

// UIConfig holds user interface settings
type UIConfig struct {
	Mode string `yaml:"mode" env:"SIMPLETASKS_UI_MODE"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Verbose bool   `yaml:"verbose" env:"SIMPLETASKS_VERBOSE"`
	File    string `yaml:"file" env:"SIMPLETASKS_LOG_FILE"`
}

// TelemetryConfig holds tracing settings
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint" env:"SIMPLETASKS_OTLP_ENDPOINT"`
}

// Config represents the application configuration
type Config struct {
	Storage      StorageConfig   `yaml:"storage"`
	Offline      OfflineConfig   `yaml:"offline"`
	Server       ServerConfig    `yaml:"server"`
	UI           UIConfig        `yaml:"ui"`
	Logging      LoggingConfig   `yaml:"logging"`
	Telemetry    TelemetryConfig `yaml:"telemetry"`
	NoPrompt     bool            `yaml:"no_prompt" env:"SIMPLETASKS_NO_PROMPT"`
	OutputFormat string          `yaml:"output_format" env:"SIMPLETASKS_OUTPUT_FORMAT"`
}

// Storage backends
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// UI modes
const (
	ModeAuto   = "auto"
	ModeApp    = "app"
	ModeReadme = "readme"
)

// DefaultCacheVersion is the bucket name of the built-in app shell
const DefaultCacheVersion = "tasks-app-v1"

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills every unset field
func (c *Config) applyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendSQLite
	}
	if c.Storage.BooksKey == "" {
		c.Storage.BooksKey = "books"
	}
	if c.Storage.TasksKey == "" {
		c.Storage.TasksKey = "tasks"
	}
	if c.Offline.Version == "" {
		c.Offline.Version = DefaultCacheVersion
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.UI.Mode == "" {
		c.UI.Mode = ModeAuto
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "text"
	}
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it is created from the sample. Environment
// overrides are applied last.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	cfg := &Config{}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeSample(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in config file: %w", err)
		}
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	cfg.Storage.Path = ExpandPath(cfg.Storage.Path)
	cfg.Offline.CachePath = ExpandPath(cfg.Offline.CachePath)
	cfg.Logging.File = ExpandPath(cfg.Logging.File)

	return cfg, nil
}

// writeSample writes the embedded sample to path
func writeSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.OutputFormat != "text" && c.OutputFormat != "json" {
		return fmt.Errorf("invalid output_format: %q (must be 'text' or 'json')", c.OutputFormat)
	}

	switch c.Storage.Backend {
	case BackendSQLite, BackendFile:
	default:
		return fmt.Errorf("unknown storage.backend: %q (must be 'sqlite' or 'file')", c.Storage.Backend)
	}
	if strings.TrimSpace(c.Storage.BooksKey) == "" || strings.TrimSpace(c.Storage.TasksKey) == "" {
		return fmt.Errorf("storage.books_key and storage.tasks_key must not be empty")
	}
	if c.Storage.BooksKey == c.Storage.TasksKey {
		return fmt.Errorf("storage.books_key and storage.tasks_key must differ, both are %q", c.Storage.BooksKey)
	}

	if strings.TrimSpace(c.Offline.Version) == "" {
		return fmt.Errorf("offline.version must not be empty")
	}
	if c.Offline.Upstream != "" {
		u, err := url.Parse(c.Offline.Upstream)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid offline.upstream: %q (must be an absolute URL)", c.Offline.Upstream)
		}
	}

	switch c.UI.Mode {
	case ModeAuto, ModeApp, ModeReadme:
	default:
		return fmt.Errorf("unknown ui.mode: %q (must be 'auto', 'app' or 'readme')", c.UI.Mode)
	}

	return nil
}

// ApplyFlags applies CLI flag overrides to the configuration
func (c *Config) ApplyFlags(noPrompt bool, outputFormat string, verbose bool) {
	if noPrompt {
		c.NoPrompt = true
	}
	if outputFormat != "" {
		c.OutputFormat = outputFormat
	}
	if verbose {
		c.Logging.Verbose = true
	}
}

// GetStoragePath returns the sqlite database file or the file backend
// directory, depending on the backend.
func (c *Config) GetStoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	if c.Storage.Backend == BackendFile {
		return filepath.Join(GetDataDir(), "lists")
	}
	return filepath.Join(GetDataDir(), "simpletasks.db")
}

// GetCachePath returns the offline cache database path
func (c *Config) GetCachePath() string {
	if c.Offline.CachePath != "" {
		return c.Offline.CachePath
	}
	return filepath.Join(GetCacheDir(), "offline.db")
}

// getXDGDir returns a directory path following XDG spec.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, "simpletasks")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, "simpletasks")
	}
	return filepath.Join(home, fallbackPath, "simpletasks")
}

// GetConfigDir returns the configuration directory following XDG spec
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following XDG spec
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// GetCacheDir returns the cache directory following XDG spec
func GetCacheDir() string {
	return getXDGDir("XDG_CACHE_HOME", ".cache")
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
