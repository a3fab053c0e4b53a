// Package config loads the daemon configuration: defaults first, then the
// YAML file on top, then individual flag overrides applied by main.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Ingress  IngressConfig  `yaml:"ingress"`
	Registry RegistryConfig `yaml:"registry"`
	Focus    FocusConfig    `yaml:"focus"`
	Handoff  HandoffConfig  `yaml:"handoff"`
	Settings SettingsConfig `yaml:"settings"`
	Log      LogConfig      `yaml:"log"`
	Privacy  PrivacyConfig  `yaml:"privacy"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type IngressConfig struct {
	// SocketPath is the unix socket path on POSIX platforms. Empty means
	// ~/.jacques/daemon.sock.
	SocketPath string `yaml:"socket_path"`
	// PipeName is the named-pipe path on Windows. Empty means
	// \\.\pipe\jacques-daemon.
	PipeName       string `yaml:"pipe_name"`
	MaxRecordBytes int    `yaml:"max_record_bytes"`
}

type RegistryConfig struct {
	StaleCheckInterval   time.Duration `yaml:"stale_check_interval"`
	StaleThreshold       time.Duration `yaml:"stale_threshold"`
	ProcessCheckInterval time.Duration `yaml:"process_check_interval"`
}

type FocusConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type HandoffConfig struct {
	// RelativePath is the artifact path watched beneath each project root.
	RelativePath string        `yaml:"relative_path"`
	Debounce     time.Duration `yaml:"debounce"`
}

type SettingsConfig struct {
	// AutocompactPath is the Claude settings file holding the autoCompact
	// flag. Empty means ~/.claude/settings.json.
	AutocompactPath string `yaml:"autocompact_path"`
	// NotificationsPath holds the daemon's notification preferences. Empty
	// means ~/.jacques/notifications.json.
	NotificationsPath string `yaml:"notifications_path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// ForwardLevel is the minimum level teed to subscribers as server_log.
	ForwardLevel string `yaml:"forward_level"`
}

type PrivacyConfig struct {
	MaskWorkingDirs  bool     `yaml:"mask_working_dirs"`
	MaskTerminalKeys bool     `yaml:"mask_terminal_keys"`
	BlockedPaths     []string `yaml:"blocked_paths"`
	AllowedPaths     []string `yaml:"allowed_paths"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 4242,
		},
		Ingress: IngressConfig{
			MaxRecordBytes: 1 << 20,
		},
		Registry: RegistryConfig{
			StaleCheckInterval:   5 * time.Minute,
			StaleThreshold:       30 * time.Minute,
			ProcessCheckInterval: 30 * time.Second,
		},
		Focus: FocusConfig{
			PollInterval: 400 * time.Millisecond,
		},
		Handoff: HandoffConfig{
			RelativePath: filepath.Join(".jacques", "handoffs", "latest.md"),
			Debounce:     2 * time.Second,
		},
		Log: LogConfig{
			Level:        "info",
			ForwardLevel: "warn",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error: the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Ingress.MaxRecordBytes < 1024 {
		return fmt.Errorf("ingress.max_record_bytes %d too small", c.Ingress.MaxRecordBytes)
	}
	if c.Registry.StaleCheckInterval <= 0 {
		return fmt.Errorf("registry.stale_check_interval must be positive")
	}
	if c.Registry.ProcessCheckInterval <= 0 {
		return fmt.Errorf("registry.process_check_interval must be positive")
	}
	if c.Focus.PollInterval <= 0 {
		return fmt.Errorf("focus.poll_interval must be positive")
	}
	if c.Handoff.Debounce < 2*time.Second {
		c.Handoff.Debounce = 2 * time.Second
	}
	return nil
}

// DefaultDir returns the daemon's own config directory, ~/.jacques.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".jacques"
	}
	return filepath.Join(home, ".jacques")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// SocketPath resolves the ingress socket path, applying the default when the
// config leaves it empty.
func (c *Config) SocketPath() string {
	if c.Ingress.SocketPath != "" {
		return c.Ingress.SocketPath
	}
	return filepath.Join(DefaultDir(), "daemon.sock")
}

// PipeName resolves the Windows named-pipe path.
func (c *Config) PipeName() string {
	if c.Ingress.PipeName != "" {
		return c.Ingress.PipeName
	}
	return `\\.\pipe\jacques-daemon`
}

// AutocompactPath resolves the Claude settings file location.
func (c *Config) AutocompactPath() string {
	if c.Settings.AutocompactPath != "" {
		return c.Settings.AutocompactPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".claude", "settings.json")
	}
	return filepath.Join(home, ".claude", "settings.json")
}

// NotificationsPath resolves the notification settings file location.
func (c *Config) NotificationsPath() string {
	if c.Settings.NotificationsPath != "" {
		return c.Settings.NotificationsPath
	}
	return filepath.Join(DefaultDir(), "notifications.json")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(DefaultDir(), "daemon.lock")
}
