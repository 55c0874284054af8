package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Portal   PortalConfig   `toml:"portal"`
	Sync     SyncConfig     `toml:"sync"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// PortalConfig describes the upstream course portal and the imported session.
type PortalConfig struct {
	BaseURL           string   `toml:"base_url"`
	SessionPath       string   `toml:"session_path"`
	LoginPath         string   `toml:"login_path"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Timeout           Duration `toml:"timeout"`
}

// SyncConfig tunes the fetch engine.
//
// None of the pacing values are load-tested; they are starting points.
type SyncConfig struct {
	Concurrency     int      `toml:"concurrency"`
	BatchSize       int      `toml:"batch_size"`
	BatchDelay      Duration `toml:"batch_delay"`
	UnitDelayMin    Duration `toml:"unit_delay_min"`
	UnitDelayMax    Duration `toml:"unit_delay_max"`
	DirectoryMaxAge Duration `toml:"directory_max_age"`
	DocumentTypes   []string `toml:"document_types"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains WebSocket bridge settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig controls log verbosity and an optional rotated log file.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Duration wraps [time.Duration] so TOML values can be written as "100ms" or "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrInvalidConfig, string(text))
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Addr returns host:port for the bridge listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Validate checks values the engine cannot run without.
func (c *Config) Validate() error {
	if c.Portal.BaseURL == "" {
		return fmt.Errorf("%w: portal.base_url is required", ErrInvalidConfig)
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("%w: sync.concurrency must be at least 1", ErrInvalidConfig)
	}
	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("%w: sync.batch_size must be at least 1", ErrInvalidConfig)
	}
	if c.Sync.UnitDelayMax.Duration < c.Sync.UnitDelayMin.Duration {
		return fmt.Errorf("%w: sync.unit_delay_max is below sync.unit_delay_min", ErrInvalidConfig)
	}
	if len(c.Sync.DocumentTypes) == 0 {
		return fmt.Errorf("%w: sync.document_types is empty", ErrInvalidConfig)
	}
	if c.Portal.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: portal.requests_per_second is negative", ErrInvalidConfig)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
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
