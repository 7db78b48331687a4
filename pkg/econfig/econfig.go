// Package econfig is the engine's configuration surface: local root
// directory, user id, device id, remote base URL, remote bearer/anonymous
// key, and sync interval, loaded from a TOML file.
package econfig

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

// Duration marshals as a human-readable Go duration string in TOML
// ("30s", "5m") rather than a bare integer of nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Config is the engine's full runtime configuration: identity (user,
// device), where the local persistent store lives, and how to reach the
// remote authoritative store.
type Config struct {
	StorageDir   string       `toml:"storage_dir"`
	UserID       string       `toml:"user_id"`
	DeviceID     string       `toml:"device_id"`
	SyncInterval Duration     `toml:"sync_interval"`
	Remote       RemoteConfig `toml:"remote"`
}

// RemoteConfig carries the fields needed to reach the remote authoritative
// store (pkg/synctargets/remote): a base URL and a bearer/anonymous key.
type RemoteConfig struct {
	BaseURL      string `toml:"base_url"`
	AnonymousKey string `toml:"anonymous_key"`
}

// DefaultConfig returns a Config with every field populated from
// environment-derived defaults; UserID and DeviceID are left blank because
// the engine has no sensible default for either (the application or CLI
// must supply them, generating a device id on first run if absent).
func DefaultConfig() *Config {
	return &Config{
		StorageDir:   DefaultStorageDir(),
		SyncInterval: Duration{5 * time.Minute},
	}
}

// Load reads configPath, falling back to DefaultConfig if the file doesn't
// exist: a missing config file is not an error, it's "use the defaults".
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.StorageDir == "" {
		cfg.StorageDir = DefaultStorageDir()
	}
	if cfg.SyncInterval.Duration == 0 {
		cfg.SyncInterval = Duration{5 * time.Minute}
	}

	return &cfg, nil
}

// Save writes cfg to configPath as TOML, creating parent directories as
// needed.
func (c *Config) Save(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// SaveTemplate writes the commented sample template to configPath, with its
// storage_dir placeholder substituted for c's actual default.
func (c *Config) SaveTemplate(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(configPath, []byte(c.renderTemplate()), 0644)
}

func (c *Config) renderTemplate() string {
	storageDir := c.StorageDir
	if storageDir == "" {
		storageDir = DefaultStorageDir()
	}
	return strings.Replace(configTemplate, "/home/user/.local/share/weapon", storageDir, 1)
}

// DefaultStorageDir returns the default directory for the local persistent
// store: $XDG_DATA_HOME/weapon, or ~/.local/share/weapon, creating it if
// absent. Falls back to "./data" if the home directory can't be resolved.
func DefaultStorageDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "./data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	dir := filepath.Join(dataDir, "weapon")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "./data"
	}
	return dir
}

// ConfigDir returns $XDG_CONFIG_HOME/weapon, or ~/.config/weapon, creating
// it if absent.
func ConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	dir := filepath.Join(configDir, "weapon")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "."
	}
	return dir
}

// DefaultConfigPath returns ConfigDir()/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}
