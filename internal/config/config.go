package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default worker probe behavior. The benchmarking service imports heavy ML
// dependencies at startup, so readiness can take tens of seconds on first run.
const (
	DefaultProbeAttempts = 15
	DefaultProbeInterval = 2 * time.Second
	DefaultProbeTimeout  = 3 * time.Second
	DefaultStopGrace     = 2 * time.Second
	DefaultWorkerPort    = 8700
	DefaultLogLines      = 1000
)

// Config holds daemon configuration loaded from ~/.benchdeck/config.yaml.
type Config struct {
	Worker       Worker `yaml:"worker"`
	SettingsPath string `yaml:"settings_path,omitempty"`
	UISocket     string `yaml:"ui_socket,omitempty"`
	LogLines     int    `yaml:"log_lines,omitempty"`
}

// Worker describes the benchmarking worker service: how to reach it and,
// when it is not already running, how to launch it.
type Worker struct {
	Host string `yaml:"host,omitempty"` // default 127.0.0.1
	Port int    `yaml:"port,omitempty"`

	// Packaged selects the bundled executable over the development command.
	Packaged   bool   `yaml:"packaged,omitempty"`
	Executable string `yaml:"executable,omitempty"` // packaged mode
	DevCommand string `yaml:"dev_command,omitempty"`
	WorkingDir string `yaml:"working_dir,omitempty"`

	Env     map[string]string `yaml:"env,omitempty"`
	Secrets map[string]string `yaml:"secrets,omitempty"` // env var -> keychain key

	ProbePath     string   `yaml:"probe_path,omitempty"` // default /api/health
	ProbeAttempts int      `yaml:"probe_attempts,omitempty"`
	ProbeInterval Duration `yaml:"probe_interval,omitempty"`
	ProbeTimeout  Duration `yaml:"probe_timeout,omitempty"`
	StopGrace     Duration `yaml:"stop_grace,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling from strings like "2s", "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// DefaultDir returns the benchdeck state directory: ~/.benchdeck.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/benchdeck"
	}
	return filepath.Join(home, ".benchdeck")
}

// DefaultPath returns the default config file path: ~/.benchdeck/config.yaml.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load reads a YAML config file from path. A missing file yields a default
// Config and no error, so a fresh install works without any setup.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Worker.Host == "" {
		c.Worker.Host = "127.0.0.1"
	}
	if c.Worker.Port == 0 {
		c.Worker.Port = DefaultWorkerPort
	}
	if c.Worker.ProbePath == "" {
		c.Worker.ProbePath = "/api/health"
	}
	if c.Worker.ProbeAttempts == 0 {
		c.Worker.ProbeAttempts = DefaultProbeAttempts
	}
	if c.Worker.ProbeInterval.Duration == 0 {
		c.Worker.ProbeInterval.Duration = DefaultProbeInterval
	}
	if c.Worker.ProbeTimeout.Duration == 0 {
		c.Worker.ProbeTimeout.Duration = DefaultProbeTimeout
	}
	if c.Worker.StopGrace.Duration == 0 {
		c.Worker.StopGrace.Duration = DefaultStopGrace
	}
	if c.SettingsPath == "" {
		c.SettingsPath = filepath.Join(DefaultDir(), "settings.json")
	}
	if c.UISocket == "" {
		c.UISocket = filepath.Join(DefaultDir(), "benchdeck.sock")
	}
	if c.LogLines == 0 {
		c.LogLines = DefaultLogLines
	}
}

// Validate checks the config for values the daemon cannot work with.
func (c *Config) Validate() error {
	if c.Worker.Port < 1 || c.Worker.Port > 65535 {
		return fmt.Errorf("worker port %d out of range", c.Worker.Port)
	}
	if c.Worker.Packaged && c.Worker.Executable == "" {
		return fmt.Errorf("packaged mode requires worker.executable")
	}
	if c.Worker.ProbeAttempts < 1 {
		return fmt.Errorf("probe_attempts must be at least 1")
	}
	if c.Worker.ProbeInterval.Duration < 0 {
		return fmt.Errorf("probe_interval must not be negative")
	}
	if !strings.HasPrefix(c.Worker.ProbePath, "/") {
		return fmt.Errorf("probe_path must start with /")
	}
	for envVar := range c.Worker.Secrets {
		if envVar == "" {
			return fmt.Errorf("secret env var name must not be empty")
		}
	}
	return nil
}

// BaseURL returns the worker's HTTP base URL.
func (c *Config) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Worker.Host, c.Worker.Port)
}

// EventURL returns the worker's push-channel websocket URL.
func (c *Config) EventURL() string {
	return fmt.Sprintf("ws://%s:%d/ws", c.Worker.Host, c.Worker.Port)
}

// Command resolves the launch command and arguments for the current
// packaging mode. Development mode splits dev_command on whitespace; the
// packaged executable takes no arguments.
func (w *Worker) Command() (string, []string) {
	if w.Packaged {
		return w.Executable, nil
	}
	parts := strings.Fields(w.DevCommand)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
