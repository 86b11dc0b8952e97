package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds server settings and order policies. Values come from the
// YAML file, then environment variables override.
type Config struct {
	Port         int    `yaml:"port"`
	DBPath       string `yaml:"db"`
	SessionHours int    `yaml:"session_hours"`
	CompanyName  string `yaml:"company_name"`
	CompanyEmail string `yaml:"company_email"`

	// AllowOverAllocation permits allocating more stock to a line than
	// it requires. Off by default.
	AllowOverAllocation bool `yaml:"allow_over_allocation"`

	// RoundOrderMultiples rounds purchase quantities up to the supplier
	// part's order multiple instead of rejecting them.
	RoundOrderMultiples bool `yaml:"round_order_multiples"`
}

// Default returns the config used when no file is present.
func Default() Config {
	return Config{
		Port:                9000,
		DBPath:              "orderhub.db",
		SessionHours:        24,
		CompanyName:         "Your Company",
		CompanyEmail:        "admin@example.com",
		RoundOrderMultiples: true,
	}
}

// Load reads the YAML config at path on top of defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.SessionHours <= 0 {
		cfg.SessionHours = 24
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ORDERHUB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv("ORDERHUB_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("ORDERHUB_COMPANY_NAME"); v != "" {
		c.CompanyName = v
	}
	if v := os.Getenv("ORDERHUB_COMPANY_EMAIL"); v != "" {
		c.CompanyEmail = v
	}
	if v := os.Getenv("ORDERHUB_ALLOW_OVER_ALLOCATION"); v != "" {
		c.AllowOverAllocation = v == "1" || v == "true"
	}
}
