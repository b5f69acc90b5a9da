// Package config binds the tuntcp CLI's flags and environment variables
// into a single struct via spf13/viper, with precedence flag > env >
// default. No config file is read.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds everything a tuntcp subcommand needs to open an
// Interface and bind/dial a connection.
type Config struct {
	Iface       string `mapstructure:"iface"`
	LocalIP     string `mapstructure:"local-ip"`
	RemoteIP    string `mapstructure:"remote-ip"`
	MTU         int    `mapstructure:"mtu"`
	MetricsAddr string `mapstructure:"metrics-addr"`
	LogLevel    string `mapstructure:"log-level"`
}

// Default returns the zero-config defaults; flags and TUNTCP_*
// environment variables override these via viper.
func Default() *Config {
	return &Config{
		Iface:    "",
		LocalIP:  "10.0.0.1",
		RemoteIP: "10.0.0.2",
		MTU:      1500,
		LogLevel: "info",
	}
}

// Load reads v (already populated from flags/env by the caller)
// into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MTU <= 0 {
		return fmt.Errorf("mtu must be positive, got %d", c.MTU)
	}
	if c.LocalIP == "" || c.RemoteIP == "" {
		return fmt.Errorf("local-ip and remote-ip are required")
	}
	return nil
}
