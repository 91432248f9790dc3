package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML (or YAML) file.
type Config struct {
	Storage      StorageConfig      `toml:"storage" yaml:"storage"`
	Database     DatabaseConfig     `toml:"database" yaml:"database"`
	Downloads    DownloadsConfig    `toml:"downloads" yaml:"downloads"`
	RadioBrowser RadioBrowserConfig `toml:"radio_browser" yaml:"radio_browser"`
	Server       ServerConfig       `toml:"server" yaml:"server"`
}

// StorageConfig locates the station store on disk.
type StorageConfig struct {
	Root    string `toml:"root" yaml:"root"`
	TempDir string `toml:"temp_dir" yaml:"temp_dir"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" yaml:"path"`
	MaxOpenConns int    `toml:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns" yaml:"max_idle_conns"`
}

// DownloadsConfig controls the download manager and the stream probe pool.
type DownloadsConfig struct {
	DownloadOverMobile  bool    `toml:"download_over_mobile" yaml:"download_over_mobile"`
	ProbeWorkers        int     `toml:"probe_workers" yaml:"probe_workers"`
	ProbeTimeoutSeconds int     `toml:"probe_timeout_seconds" yaml:"probe_timeout_seconds"`
	RateLimit           float64 `toml:"rate_limit" yaml:"rate_limit"`
	UserAgent           string  `toml:"user_agent" yaml:"user_agent"`
}

// ProbeTimeout returns the probe timeout as a [time.Duration].
func (d DownloadsConfig) ProbeTimeout() time.Duration {
	if d.ProbeTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(d.ProbeTimeoutSeconds) * time.Second
}

// RadioBrowserConfig holds the default radio-browser.info API host.
type RadioBrowserConfig struct {
	API string `toml:"api" yaml:"api"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host" yaml:"host"`
	Port int    `toml:"port" yaml:"port"`
}

// Addr returns host:port for [net/http.Server].
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CollectionDir is the folder holding the persisted collection file.
func (c *Config) CollectionDir() string {
	return filepath.Join(c.Storage.Root, "collection")
}

// ImagesDir is the folder holding per-station image folders.
func (c *Config) ImagesDir() string {
	return filepath.Join(c.Storage.Root, "images")
}

// LoadConfig reads and parses a configuration file from the specified path.
//
// Files ending in .yaml or .yml are decoded as YAML; everything else as TOML.
// Values missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = toml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the fields every component depends on.
func (c *Config) Validate() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("%w: storage.root is required", ErrInvalidConfig)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	if c.Downloads.ProbeWorkers < 0 {
		return fmt.Errorf("%w: downloads.probe_workers must not be negative", ErrInvalidConfig)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
