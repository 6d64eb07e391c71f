// Package config loads harness settings from built-in defaults, an optional
// uiverify.toml file and UIVERIFY_* environment variables, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// FileName is the config file looked up in the working directory and in
// $HOME/.config/uiverify.
const FileName = "uiverify.toml"

// Config holds every harness setting.
type Config struct {
	BaseURL      string   `toml:"base_url" validate:"required,url"`
	ArtifactsDir string   `toml:"artifacts_dir" validate:"required"`
	Browser      Browser  `toml:"browser"`
	Timeouts     Timeouts `toml:"timeouts"`
	State        State    `toml:"state"`
	Log          Log      `toml:"log"`
}

// Browser configures how the browser is obtained.
type Browser struct {
	Headless      bool   `toml:"headless"`
	ChromePath    string `toml:"chrome_path"`
	Port          int    `toml:"port" validate:"gte=0,lte=65535"`
	Connect       string `toml:"connect" validate:"omitempty,hostname_port"`
	LaunchTimeout string `toml:"launch_timeout" validate:"required"`
	WindowWidth   int    `toml:"window_width" validate:"gte=0"`
	WindowHeight  int    `toml:"window_height" validate:"gte=0"`
}

// Timeouts are duration strings such as "5s" or "250ms". Boot bounds the
// wait for a scenario's ready element once state has been applied.
type Timeouts struct {
	Default      string `toml:"default" validate:"required"`
	Boot         string `toml:"boot" validate:"required"`
	Navigation   string `toml:"navigation" validate:"required"`
	NetworkIdle  string `toml:"network_idle" validate:"required"`
	PollInterval string `toml:"poll_interval" validate:"required"`
}

// State configures state injection.
type State struct {
	Store string `toml:"store" validate:"oneof=localStorage sessionStorage"`
}

// Log configures logging and the console buffer.
type Log struct {
	Level         string `toml:"level" validate:"oneof=trace debug info warn error"`
	ConsoleBuffer int    `toml:"console_buffer" validate:"gt=0"`
}

// Durations are the parsed forms of the duration settings.
type Durations struct {
	Default       time.Duration
	Boot          time.Duration
	Navigation    time.Duration
	NetworkIdle   time.Duration
	PollInterval  time.Duration
	LaunchTimeout time.Duration
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:      "http://localhost:5173",
		ArtifactsDir: "verification",
		Browser: Browser{
			Headless:      true,
			LaunchTimeout: "30s",
			WindowWidth:   1280,
			WindowHeight:  800,
		},
		Timeouts: Timeouts{
			Default:      "5s",
			Boot:         "10s",
			Navigation:   "30s",
			NetworkIdle:  "500ms",
			PollInterval: "100ms",
		},
		State: State{Store: "localStorage"},
		Log: Log{
			Level:         "info",
			ConsoleBuffer: 200,
		},
	}
}

// Load builds the configuration. An explicit path (or UIVERIFY_CONFIG) must
// exist; otherwise the default locations are tried and skipped when absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("UIVERIFY_CONFIG")
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	} else {
		for _, candidate := range defaultPaths() {
			err := cfg.mergeFile(candidate)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, err
			}
			break
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultPaths() []string {
	paths := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "uiverify", FileName))
	}
	return paths
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("UIVERIFY_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("UIVERIFY_ARTIFACTS_DIR"); v != "" {
		c.ArtifactsDir = v
	}
	if v := os.Getenv("UIVERIFY_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("UIVERIFY_HEADLESS: %w", err)
		}
		c.Browser.Headless = b
	}
	if v := os.Getenv("UIVERIFY_CHROME_PATH"); v != "" {
		c.Browser.ChromePath = v
	}
	if v := os.Getenv("UIVERIFY_CONNECT"); v != "" {
		c.Browser.Connect = v
	}
	if v := os.Getenv("UIVERIFY_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("UIVERIFY_DEFAULT_TIMEOUT"); v != "" {
		c.Timeouts.Default = v
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints and that every duration parses.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Durations(); err != nil {
		return err
	}
	return nil
}

// Durations parses the duration settings.
func (c *Config) Durations() (Durations, error) {
	var d Durations
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"timeouts.default", c.Timeouts.Default, &d.Default},
		{"timeouts.boot", c.Timeouts.Boot, &d.Boot},
		{"timeouts.navigation", c.Timeouts.Navigation, &d.Navigation},
		{"timeouts.network_idle", c.Timeouts.NetworkIdle, &d.NetworkIdle},
		{"timeouts.poll_interval", c.Timeouts.PollInterval, &d.PollInterval},
		{"browser.launch_timeout", c.Browser.LaunchTimeout, &d.LaunchTimeout},
	}
	for _, f := range fields {
		v, err := time.ParseDuration(f.raw)
		if err != nil {
			return Durations{}, fmt.Errorf("invalid config: %s: %w", f.name, err)
		}
		if v < 0 {
			return Durations{}, fmt.Errorf("invalid config: %s must not be negative", f.name)
		}
		*f.dst = v
	}
	if d.PollInterval == 0 {
		return Durations{}, errors.New("invalid config: timeouts.poll_interval must be positive")
	}
	return d, nil
}
