package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines runtime settings for the gatekeeper.
type Config struct {
	PolicyPath                 string        `yaml:"policyPath"`
	AuditLogPath               string        `yaml:"auditLogPath"`
	LogLevel                   string        `yaml:"logLevel"`
	User                       string        `yaml:"user"`
	ConfirmationTimeoutSeconds int           `yaml:"confirmationTimeoutSeconds"`
	Exec                       ExecConfig    `yaml:"exec"`
	Gateway                    GatewayConfig `yaml:"gateway"`
}

// ExecConfig holds default execution limits; per-command policy values
// override these.
type ExecConfig struct {
	Timeout   string `yaml:"timeout"`
	MaxOutput int    `yaml:"maxOutput"`
}

// GatewayConfig holds TCP front settings.
type GatewayConfig struct {
	Address      string   `yaml:"address"`
	AllowedAddrs []string `yaml:"allowedAddrs"`
	MaxSessions  int      `yaml:"maxSessions"`
}

// LoadConfig loads configuration from a YAML file and environment
// overrides. An empty path skips the file and uses defaults plus env.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		AuditLogPath:               filepath.Join(defaultHome(), "audit.log"),
		LogLevel:                   "info",
		ConfirmationTimeoutSeconds: 30,
		Exec: ExecConfig{
			Timeout:   "60s",
			MaxOutput: 1 << 20,
		},
		Gateway: GatewayConfig{
			Address: "127.0.0.1:7466",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if policyPath := os.Getenv("GATE_POLICY"); policyPath != "" {
		cfg.PolicyPath = policyPath
	}
	if auditPath := os.Getenv("GATE_AUDIT_LOG"); auditPath != "" {
		cfg.AuditLogPath = auditPath
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if timeout := os.Getenv("CONFIRMATION_TIMEOUT"); timeout != "" {
		seconds, err := strconv.Atoi(timeout)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("invalid CONFIRMATION_TIMEOUT: %q", timeout)
		}
		cfg.ConfirmationTimeoutSeconds = seconds
	}

	return cfg, nil
}

// ConfirmationTimeout returns the decision window as a duration.
func (c *Config) ConfirmationTimeout() time.Duration {
	return time.Duration(c.ConfirmationTimeoutSeconds) * time.Second
}

// ExecTimeout parses the default execution timeout, falling back to 60s on
// a malformed value.
func (c *Config) ExecTimeout() time.Duration {
	d, err := time.ParseDuration(c.Exec.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// DefaultConfigPath returns the default location for the config file.
func DefaultConfigPath() string {
	if path := os.Getenv("GATE_CONFIG"); path != "" {
		return path
	}
	return filepath.Join(defaultHome(), "config.yaml")
}

func defaultHome() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gate")
}
