package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

type Config struct {
	LogLevel   string      `json:"log_level"`   // "debug", "info", "warn", "error"
	HiddenApps string      `json:"hidden_apps"` // comma-joined display names
	AppOrder   string      `json:"app_order"`   // comma-joined display names
	Audio      AudioConfig `json:"audio"`
	Mixer      MixerConfig `json:"mixer"`

	path string
}

type AudioConfig struct {
	Server       string `json:"server"`       // PulseAudio server, empty for the default
	MeterDevice  string `json:"meter_device"` // PortAudio input used for the master meter
	MeterEnabled bool   `json:"meter_enabled"`
}

type MixerConfig struct {
	PeakIntervalMS int `json:"peak_interval_ms"`
	SyncIntervalMS int `json:"sync_interval_ms"`
	SyncTimeoutMS  int `json:"sync_timeout_ms"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			MeterEnabled: true,
		},
		Mixer: MixerConfig{
			PeakIntervalMS: 16,
			SyncIntervalMS: 3000,
			SyncTimeoutMS:  2000,
		},
		path: Path(),
	}
}

// Load reads the config from the platform config path or returns defaults
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads the config at path. A missing file yields defaults. A
// malformed file also yields defaults, together with the decode error so
// the caller can report it without refusing to start.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	loaded := Default()
	if err := json.Unmarshal(data, loaded); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	loaded.path = path
	loaded.normalize()

	return loaded, nil
}

// normalize replaces out-of-range tick settings with defaults.
func (c *Config) normalize() {
	def := Default()
	if c.Mixer.PeakIntervalMS <= 0 {
		c.Mixer.PeakIntervalMS = def.Mixer.PeakIntervalMS
	}
	if c.Mixer.SyncIntervalMS <= 0 {
		c.Mixer.SyncIntervalMS = def.Mixer.SyncIntervalMS
	}
	if c.Mixer.SyncTimeoutMS <= 0 {
		c.Mixer.SyncTimeoutMS = def.Mixer.SyncTimeoutMS
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// Save writes the config to disk. The write is serialized across processes
// with a lock file next to the config and lands through a rename.
func (c *Config) Save() error {
	path := c.Path()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock config: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// Path returns the file this config was loaded from and is saved to.
func (c *Config) Path() string {
	if c.path == "" {
		return Path()
	}
	return c.path
}

// Hidden returns the hidden display names.
func (c *Config) Hidden() []string {
	return SplitList(c.HiddenApps)
}

// SetHidden replaces the hidden display names.
func (c *Config) SetHidden(names []string) {
	c.HiddenApps = JoinList(names)
}

// Order returns the persisted display order.
func (c *Config) Order() []string {
	return SplitList(c.AppOrder)
}

// SetOrder replaces the persisted display order.
func (c *Config) SetOrder(names []string) {
	c.AppOrder = JoinList(names)
}

func (c *Config) PeakInterval() time.Duration {
	return time.Duration(c.Mixer.PeakIntervalMS) * time.Millisecond
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Mixer.SyncIntervalMS) * time.Millisecond
}

func (c *Config) SyncTimeout() time.Duration {
	return time.Duration(c.Mixer.SyncTimeoutMS) * time.Millisecond
}

// SplitList parses a comma-joined list. Entries are trimmed, blanks and
// repeats are dropped, first occurrence wins.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// JoinList is the inverse of SplitList.
func JoinList(names []string) string {
	return strings.Join(SplitList(strings.Join(names, ",")), ",")
}

// Path returns the platform-specific config file path
func Path() string {
	return filepath.Join(Dir(), "config.json")
}

// LockPath returns the single-instance lock file path.
func LockPath() string {
	return filepath.Join(Dir(), "mixer-tray.lock")
}

// Dir returns the platform-specific config directory
func Dir() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "mixer-tray")
}
