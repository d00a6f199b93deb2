// Package config loads the zonewatch client configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultWebSocketPath    = "/api/websocket"
	DefaultPollPath         = "/api/zones"
	DefaultPollIntervalSec  = 30
	DefaultFailureThreshold = 5
	DefaultProbeIntervalSec = 60
	DefaultLogLevel         = "info"
)

// Config holds the zonewatch client settings.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Transport TransportConfig `yaml:"transport"`
	Storage   StorageConfig   `yaml:"storage"`
	LogLevel  string          `yaml:"log_level"`
}

// ServerConfig locates the heating hub.
type ServerConfig struct {
	// URL is the hub's HTTP base URL (e.g. http://hub.local:8123).
	URL string `yaml:"url"`

	// WebSocketPath is the realtime endpoint path.
	WebSocketPath string `yaml:"websocket_path"`

	// Discover enables mDNS hub discovery when URL is empty.
	Discover bool `yaml:"discover"`
}

// AuthConfig supplies token sources, tried in this order: token,
// launch_url, token_file.
type AuthConfig struct {
	Token     string `yaml:"token"`
	LaunchURL string `yaml:"launch_url"`
	TokenFile string `yaml:"token_file"`
}

// TransportConfig tunes the transport policy.
type TransportConfig struct {
	PollPath         string `yaml:"poll_path"`
	PollIntervalSec  int    `yaml:"poll_interval_sec"`
	FailureThreshold int    `yaml:"failure_threshold"`
	ProbeIntervalSec int    `yaml:"probe_interval_sec"`
	Embedded         bool   `yaml:"embedded"`
}

// PollInterval returns the poll cadence.
func (t TransportConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalSec) * time.Second
}

// ProbeInterval returns the background probe cadence.
func (t TransportConfig) ProbeInterval() time.Duration {
	return time.Duration(t.ProbeIntervalSec) * time.Second
}

// StorageConfig locates the client's local state files.
type StorageConfig struct {
	MetricsPath string `yaml:"metrics_path"`
	JournalPath string `yaml:"journal_path"`
}

// Load reads and parses a YAML config file, applying defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// ApplyDefaults fills unset fields with defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.WebSocketPath == "" {
		cfg.Server.WebSocketPath = DefaultWebSocketPath
	}
	if cfg.Transport.PollPath == "" {
		cfg.Transport.PollPath = DefaultPollPath
	}
	if cfg.Transport.PollIntervalSec <= 0 {
		cfg.Transport.PollIntervalSec = DefaultPollIntervalSec
	}
	if cfg.Transport.FailureThreshold <= 0 {
		cfg.Transport.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Transport.ProbeIntervalSec <= 0 {
		cfg.Transport.ProbeIntervalSec = DefaultProbeIntervalSec
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Storage.MetricsPath == "" {
		cfg.Storage.MetricsPath = filepath.Join(stateDir(), "metrics.json")
	}
	if cfg.Storage.JournalPath == "" {
		cfg.Storage.JournalPath = filepath.Join(stateDir(), "connection.journal")
	}
}

// Validate checks the configuration for contradictions.
func Validate(cfg Config) error {
	if cfg.Server.URL == "" && !cfg.Server.Discover {
		return fmt.Errorf("server.url is required unless server.discover is enabled")
	}
	if cfg.Server.URL != "" {
		u, err := url.Parse(cfg.Server.URL)
		if err != nil {
			return fmt.Errorf("invalid server.url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("server.url must use http or https, got %q", u.Scheme)
		}
	}
	return nil
}

// WebSocketURL derives the realtime endpoint from the HTTP base URL.
func (s ServerConfig) WebSocketURL() string {
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = s.WebSocketPath
	return u.String()
}

func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".zonewatch"
	}
	return filepath.Join(home, ".zonewatch")
}
