// Package config handles configuration file loading, validation and saving.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/jmylchreest/autoduck/internal/audio"
	"github.com/jmylchreest/autoduck/internal/engine"
	"github.com/jmylchreest/autoduck/internal/model"
)

// Duration is a time.Duration that can be unmarshaled from human-readable strings.
// Supports formats like "250ms", "1.5s", "1m", or integer milliseconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '250ms', '1s' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Backend kinds.
const (
	BackendPulse = "pulse"
	BackendLocal = "local"
)

// Limits beyond those the engine itself enforces.
const (
	MaxRestoreDelay = 60 * time.Second
	MaxFade         = 10 * time.Second
)

// Config is the configuration for autoduckd.
// Loaded from ~/.config/autoduck/autoduck.toml
type Config struct {
	Engine  EngineConfig  `toml:"engine"`
	Apps    AppsConfig    `toml:"apps"`
	Backend BackendConfig `toml:"backend"`
	Notify  NotifyConfig  `toml:"notify"`
	Metrics MetricsConfig `toml:"metrics"`
}

// EngineConfig contains the ducking parameters.
type EngineConfig struct {
	VolumeNormal  float64  `toml:"volume_normal"`
	VolumeDucked  float64  `toml:"volume_ducked"`
	PeakThreshold float64  `toml:"peak_threshold"`
	RestoreDelay  Duration `toml:"restore_delay"`
	FadeOut       Duration `toml:"fade_out"`
	FadeIn        Duration `toml:"fade_in"`
	PollInterval  Duration `toml:"poll_interval"`
	RestoreOnStop bool     `toml:"restore_on_stop"`
	Autostart     bool     `toml:"autostart"` // Start the engine when the daemon starts
}

// AppsConfig lists application identities per role.
type AppsConfig struct {
	Priority []string `toml:"priority"`
	Music    []string `toml:"music"`
	Ignored  []string `toml:"ignored"`
}

// BackendConfig selects the session directory.
type BackendConfig struct {
	Kind  string             `toml:"kind"` // "pulse" or "local"
	Local LocalBackendConfig `toml:"local"`
}

// LocalBackendConfig describes the sessions played by the local backend.
type LocalBackendConfig struct {
	Sessions []audio.LocalSession `toml:"sessions"`
}

// NotifyConfig contains desktop notification settings.
type NotifyConfig struct {
	Enabled bool `toml:"enabled"`
}

// MetricsConfig contains the metrics listener settings.
type MetricsConfig struct {
	Listen string `toml:"listen"` // host:port, empty disables
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	s := engine.DefaultSettings()
	return &Config{
		Engine: EngineConfig{
			VolumeNormal:  s.VolumeNormal,
			VolumeDucked:  s.VolumeDucked,
			PeakThreshold: s.PeakThreshold,
			RestoreDelay:  Duration(s.RestoreDelay),
			FadeOut:       Duration(s.FadeOut),
			FadeIn:        Duration(s.FadeIn),
			PollInterval:  Duration(s.PollInterval),
			RestoreOnStop: s.RestoreOnStop,
			Autostart:     true,
		},
		Apps: AppsConfig{
			Priority: []string{},
			Music:    []string{},
			Ignored:  []string{},
		},
		Backend: BackendConfig{
			Kind: BackendPulse,
		},
		Notify: NotifyConfig{
			Enabled: true,
		},
	}
}

// Path returns the path to the config file.
func Path() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "autoduck", "autoduck.toml"), nil
}

// Load loads the configuration from path, or from Path() when path is empty.
// If the file doesn't exist, returns the default configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML over the defaults, resolves app list conflicts and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	for _, id := range cfg.Apps.Normalize() {
		slog.Warn("app listed as both priority and music, keeping priority", "identity", id)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path, or to Path() when path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := Path()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Edit loads the configuration at path, applies fn, validates the result and
// saves it. Nothing is written when fn or validation fails.
func Edit(path string, fn func(*Config) error) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg.Save(path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Settings().Validate(); err != nil {
		return err
	}
	if d := c.Engine.RestoreDelay.Duration(); d > MaxRestoreDelay {
		return fmt.Errorf("restore_delay must be at most %s, got %s", MaxRestoreDelay, d)
	}
	for name, d := range map[string]Duration{"fade_out": c.Engine.FadeOut, "fade_in": c.Engine.FadeIn} {
		if d.Duration() > MaxFade {
			return fmt.Errorf("%s must be at most %s, got %s", name, MaxFade, d.Duration())
		}
	}

	switch c.Backend.Kind {
	case BackendPulse:
	case BackendLocal:
		for i, s := range c.Backend.Local.Sessions {
			if model.NormalizeIdentity(s.Identity) == "" || s.File == "" {
				return fmt.Errorf("backend.local.sessions[%d]: identity and file are required", i)
			}
		}
	default:
		return fmt.Errorf("invalid backend kind %q, must be %q or %q", c.Backend.Kind, BackendPulse, BackendLocal)
	}

	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			return fmt.Errorf("invalid metrics listen address %q: %w", c.Metrics.Listen, err)
		}
	}
	return nil
}

// Settings converts the engine section to engine settings.
func (c *Config) Settings() engine.Settings {
	return engine.Settings{
		VolumeNormal:  c.Engine.VolumeNormal,
		VolumeDucked:  c.Engine.VolumeDucked,
		PeakThreshold: c.Engine.PeakThreshold,
		RestoreDelay:  c.Engine.RestoreDelay.Duration(),
		FadeOut:       c.Engine.FadeOut.Duration(),
		FadeIn:        c.Engine.FadeIn.Duration(),
		PollInterval:  c.Engine.PollInterval.Duration(),
		RestoreOnStop: c.Engine.RestoreOnStop,
	}
}

// SetSettings copies engine settings into the config, leaving Autostart.
func (c *Config) SetSettings(s engine.Settings) {
	c.Engine.VolumeNormal = s.VolumeNormal
	c.Engine.VolumeDucked = s.VolumeDucked
	c.Engine.PeakThreshold = s.PeakThreshold
	c.Engine.RestoreDelay = Duration(s.RestoreDelay)
	c.Engine.FadeOut = Duration(s.FadeOut)
	c.Engine.FadeIn = Duration(s.FadeIn)
	c.Engine.PollInterval = Duration(s.PollInterval)
	c.Engine.RestoreOnStop = s.RestoreOnStop
}

// Classification builds the role table from the apps section.
func (c *Config) Classification() *model.Classification {
	return c.Apps.Classification()
}
