package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default scan parameters. The 30x1s health budget matches the slow warm-up
// of the transcription models the backend loads on startup.
const (
	DefaultPortMin     = 8000
	DefaultPortMax     = 8050
	DefaultMaxAttempts = 30
	DefaultInterval    = 1 * time.Second
	DefaultHealthPath  = "/health"
)

// PortPlaceholder is substituted with the attempted port in backend args.
const PortPlaceholder = "{port}"

// Config defines the launcher configuration, loaded from a YAML file.
type Config struct {
	// Backend process to launch
	Backend BackendConfig `yaml:"backend"`

	// Candidate port range, scanned in ascending order
	Ports PortRange `yaml:"ports"`

	// Health check configuration
	HealthCheck HealthCheckConfig `yaml:"healthcheck"`
}

// BackendConfig describes how to start the backend service process.
type BackendConfig struct {
	// Path to the backend executable
	Command string `yaml:"command"`

	// Arguments passed to the executable. Occurrences of "{port}" are
	// replaced with the port being attempted.
	Args []string `yaml:"args"`

	// Working directory for the process (defaults to the launcher's)
	WorkDir string `yaml:"workdir"`

	// Extra environment variables for the process
	Environment map[string]string `yaml:"environment"`
}

// PortRange is the closed interval of candidate ports.
type PortRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// HealthCheckConfig defines health probe parameters.
type HealthCheckConfig struct {
	// HTTP path probed on the attempted port
	Path string `yaml:"path"`

	// Interval between probes
	Interval time.Duration `yaml:"interval"`

	// Maximum probes per port before giving up on it
	MaxAttempts int `yaml:"max_attempts"`

	// Timeout for a single probe request
	Timeout time.Duration `yaml:"timeout"`

	// Delay between spawn and the first probe
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// UnmarshalYAML accepts durations in time.ParseDuration syntax ("500ms",
// "1s"), which yaml.v3 does not handle for time.Duration on its own.
func (h *HealthCheckConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Path        string `yaml:"path"`
		Interval    string `yaml:"interval"`
		MaxAttempts int    `yaml:"max_attempts"`
		Timeout     string `yaml:"timeout"`
		SettleDelay string `yaml:"settle_delay"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	h.Path = raw.Path
	h.MaxAttempts = raw.MaxAttempts

	for _, f := range []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"interval", raw.Interval, &h.Interval},
		{"timeout", raw.Timeout, &h.Timeout},
		{"settle_delay", raw.SettleDelay, &h.SettleDelay},
	} {
		if f.src == "" {
			continue
		}
		d, err := time.ParseDuration(f.src)
		if err != nil {
			return fmt.Errorf("healthcheck.%s: %w", f.name, err)
		}
		*f.dst = d
	}

	return nil
}

// LoadConfig loads a launcher configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a configuration with all defaults applied.
// The backend command must still be set by the caller.
func DefaultConfig() *Config {
	return &Config{
		Ports: PortRange{
			Min: DefaultPortMin,
			Max: DefaultPortMax,
		},
		HealthCheck: HealthCheckConfig{
			Path:        DefaultHealthPath,
			Interval:    DefaultInterval,
			MaxAttempts: DefaultMaxAttempts,
			Timeout:     2 * time.Second,
			SettleDelay: 1 * time.Second,
		},
	}
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Backend.Command == "" {
		return ErrInvalidConfiguration("backend.command", "", "backend command is required")
	}

	if c.Ports.Min == 0 && c.Ports.Max == 0 {
		c.Ports.Min = DefaultPortMin
		c.Ports.Max = DefaultPortMax
	}

	if c.Ports.Min < 1 || c.Ports.Min > 65535 {
		return ErrInvalidConfiguration("ports.min", c.Ports.Min, "port must be between 1 and 65535")
	}

	if c.Ports.Max < 1 || c.Ports.Max > 65535 {
		return ErrInvalidConfiguration("ports.max", c.Ports.Max, "port must be between 1 and 65535")
	}

	if c.Ports.Max < c.Ports.Min {
		return ErrInvalidConfiguration("ports.max", c.Ports.Max, "ports.max must not be below ports.min")
	}

	if c.HealthCheck.Path == "" {
		c.HealthCheck.Path = DefaultHealthPath
	}
	if !strings.HasPrefix(c.HealthCheck.Path, "/") {
		return ErrInvalidConfiguration("healthcheck.path", c.HealthCheck.Path, "path must start with /")
	}

	if c.HealthCheck.Interval == 0 {
		c.HealthCheck.Interval = DefaultInterval
	}
	if c.HealthCheck.Interval < 0 {
		return ErrInvalidConfiguration("healthcheck.interval", c.HealthCheck.Interval, "interval must be positive")
	}

	if c.HealthCheck.MaxAttempts == 0 {
		c.HealthCheck.MaxAttempts = DefaultMaxAttempts
	}
	if c.HealthCheck.MaxAttempts < 1 {
		return ErrInvalidConfiguration("healthcheck.max_attempts", c.HealthCheck.MaxAttempts, "at least one attempt is required")
	}

	if c.HealthCheck.Timeout == 0 {
		c.HealthCheck.Timeout = 2 * time.Second
	}

	if c.HealthCheck.SettleDelay == 0 {
		c.HealthCheck.SettleDelay = 1 * time.Second
	}

	return nil
}

// CommandPath returns the absolute path to the backend executable.
func (c *Config) CommandPath() string {
	if filepath.IsAbs(c.Backend.Command) {
		return c.Backend.Command
	}

	if c.Backend.WorkDir != "" {
		return filepath.Join(c.Backend.WorkDir, c.Backend.Command)
	}

	return c.Backend.Command
}

// ExpandArgs returns the backend arguments with the port placeholder
// substituted for the given port.
func (c *Config) ExpandArgs(port int) []string {
	args := make([]string, len(c.Backend.Args))
	for i, arg := range c.Backend.Args {
		args[i] = strings.ReplaceAll(arg, PortPlaceholder, fmt.Sprintf("%d", port))
	}
	return args
}
