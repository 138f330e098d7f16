// Package config loads the agent configuration file.
//
// Configuration is YAML with ${VAR} environment substitution applied
// before parsing, so secrets like the provisioning token can come from
// the environment instead of being written into the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hoststack/vm-agent/tools"
)

// ServerConfig configures the agent's HTTP API listener.
type ServerConfig struct {
	ListenAddr  string        `yaml:"listen_addr"`
	MetricsAddr string        `yaml:"metrics_addr"`
	EnablePprof bool          `yaml:"enable_pprof"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	WriteTime   time.Duration `yaml:"write_timeout"`
}

// OrchestratorConfig locates the control plane.
type OrchestratorConfig struct {
	URL string `yaml:"url"`

	// ProvisioningToken is the short-lived JWT for first registration.
	// Usually set via ${VM_AGENT_PROVISIONING_TOKEN}.
	ProvisioningToken string `yaml:"provisioning_token"`

	// CommandChannel enables the outbound WebSocket connection.
	CommandChannel bool `yaml:"command_channel"`
}

// SecretsConfig selects where credentials and key material live.
type SecretsConfig struct {
	// Location is a backend URI: file:///var/lib/vm-agent or
	// vault://host:8200/secret/data/vm-agent.
	Location string `yaml:"location"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	JSON  bool `yaml:"json"`
	Debug bool `yaml:"debug"`
}

// Config is the root of the agent configuration file.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Secrets      SecretsConfig      `yaml:"secrets"`
	Tools        tools.Config       `yaml:"tools"`
	Log          LogConfig          `yaml:"log"`
}

// Default returns the built-in configuration used when no file is
// given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:  "0.0.0.0:8080",
			MetricsAddr: "127.0.0.1:9090",
			ReadTimeout: 30 * time.Second,
			WriteTime:   60 * time.Second,
		},
		Secrets: SecretsConfig{
			Location: "file:///var/lib/vm-agent",
		},
	}
}

// Load reads the file, substitutes ${VAR} references from the
// environment and parses it over the defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read configuration file: %w", err)
	}

	expanded := os.Expand(string(raw), func(key string) string {
		return os.Getenv(key)
	})

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("could not parse configuration file: %w", err)
	}

	if cfg.Orchestrator.URL == "" {
		return nil, fmt.Errorf("orchestrator.url is required")
	}
	return cfg, nil
}
