// Package config loads and saves the per-project review configuration kept
// in .ecgreview/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ViVse/ecg-v2/view"
)

const (
	ConfigDir       = ".ecgreview"
	ConfigFileName  = "config.yaml"
	OverridesFile   = "overrides.gob"
	DefaultPostgres = "postgres://localhost:5432/ecgreview"
)

var ErrNotFound = errors.New("no .ecgreview directory found (run 'ecgreview init')")

type Config struct {
	Version int           `yaml:"version"`
	Display DisplayConfig `yaml:"display"`
	Store   StoreConfig   `yaml:"store"`
	Editing EditingConfig `yaml:"editing"`
	MCP     MCPConfig     `yaml:"mcp"`
	Watch   WatchConfig   `yaml:"watch"`
}

type DisplayConfig struct {
	Palette     view.Palette     `yaml:"palette"`
	Peaks       view.PeakToggles `yaml:"peaks"`
	AnimationMS int              `yaml:"animation_ms"`
	MinWindow   float64          `yaml:"min_window"`
}

// Animation returns the load animation.
func (d DisplayConfig) Animation() view.Animation {
	return view.Animation{Duration: time.Duration(d.AnimationMS) * time.Millisecond}
}

type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	GOB      GOBConfig      `yaml:"gob,omitempty"`
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
}

type GOBConfig struct {
	Path string `yaml:"path,omitempty"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type EditingConfig struct {
	Enabled bool `yaml:"enabled"`
}

type MCPConfig struct {
	Format string `yaml:"format"`
}

type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Display: DisplayConfig{
			Palette:     view.DefaultPalette(),
			Peaks:       view.AllPeaks(),
			AnimationMS: 400,
			MinWindow:   view.DefaultMinWindow,
		},
		Store:   DefaultStoreForBackend("gob"),
		Editing: EditingConfig{Enabled: true},
		MCP:     MCPConfig{Format: "json"},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 300 * time.Millisecond,
		},
	}
}

// DefaultStoreForBackend returns store settings for a named backend.
func DefaultStoreForBackend(backend string) StoreConfig {
	switch backend {
	case "postgres":
		return StoreConfig{Backend: "postgres", Postgres: PostgresConfig{DSN: DefaultPostgres}}
	case "none":
		return StoreConfig{Backend: "none"}
	default:
		return StoreConfig{Backend: "gob"}
	}
}

// GetConfigDir returns the .ecgreview directory under projectRoot.
func GetConfigDir(projectRoot string) string {
	return filepath.Join(projectRoot, ConfigDir)
}

// GetConfigPath returns the config file path under projectRoot.
func GetConfigPath(projectRoot string) string {
	return filepath.Join(GetConfigDir(projectRoot), ConfigFileName)
}

// GetOverridesPath returns the GOB store path, honoring store.gob.path.
func (c *Config) GetOverridesPath(projectRoot string) string {
	if c.Store.GOB.Path != "" {
		if filepath.IsAbs(c.Store.GOB.Path) {
			return c.Store.GOB.Path
		}
		return filepath.Join(projectRoot, c.Store.GOB.Path)
	}
	return filepath.Join(GetConfigDir(projectRoot), OverridesFile)
}

// Exists reports whether projectRoot has a config file.
func Exists(projectRoot string) bool {
	_, err := os.Stat(GetConfigPath(projectRoot))
	return err == nil
}

// FindProjectRoot walks up from the working directory looking for a
// .ecgreview directory.
func FindProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	dir := cwd
	for {
		if info, err := os.Stat(GetConfigDir(dir)); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotFound
		}
		dir = parent
	}
}

// Load reads the config under projectRoot. Missing fields keep their
// defaults.
func Load(projectRoot string) (*Config, error) {
	return LoadFile(GetConfigPath(projectRoot))
}

// LoadFile reads a config file from an explicit path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config under projectRoot, creating the directory.
func (c *Config) Save(projectRoot string) error {
	if err := os.MkdirAll(GetConfigDir(projectRoot), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(GetConfigPath(projectRoot), data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects unknown backends and formats.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "gob", "postgres", "none":
	default:
		return fmt.Errorf("unknown storage backend: %s (use gob, postgres or none)", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Store.Postgres.DSN == "" {
		return errors.New("store.postgres.dsn is required for the postgres backend")
	}
	switch c.MCP.Format {
	case "json", "toon":
	default:
		return fmt.Errorf("unknown mcp format: %s (use json or toon)", c.MCP.Format)
	}
	if c.Display.MinWindow < 0 || c.Display.AnimationMS < 0 {
		return errors.New("display.min_window and display.animation_ms must not be negative")
	}
	return nil
}
