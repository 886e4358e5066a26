// Package config handles loading the bot configuration from YAML with
// environment variable expansion and .env support.
package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chacaradapaz/atendebot/pkg/atendebot/ai"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/database"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/reservations"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/schedule"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/session"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/transport/whatsapp"
)

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Config is the full bot configuration.
type Config struct {
	// Name identifies the venue in logs.
	Name string `yaml:"name"`

	// Timezone for schedules and the reservation monitor.
	Timezone string `yaml:"timezone"`

	Logging      LoggingConfig              `yaml:"logging"`
	Database     database.Config            `yaml:"database"`
	WhatsApp     whatsapp.Config            `yaml:"whatsapp"`
	AI           ai.Config                  `yaml:"ai"`
	Session      session.Config             `yaml:"session"`
	Access       session.AccessPolicy       `yaml:"access"`
	Reservations reservations.Config        `yaml:"reservations"`
	Monitor      reservations.MonitorConfig `yaml:"monitor"`
	Schedules    []schedule.Schedule        `yaml:"schedules"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:     "atendebot",
		Timezone: "America/Sao_Paulo",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Database:     database.DefaultConfig(),
		WhatsApp:     whatsapp.DefaultConfig(),
		AI:           ai.DefaultConfig(),
		Session:      session.DefaultConfig(),
		Reservations: reservations.DefaultConfig(),
		Monitor:      reservations.DefaultMonitorConfig(),
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} references.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// LoadConfigFromFile reads and parses a YAML configuration file. Loads .env
// first and expands ${VAR} references before parsing.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg, err := ParseConfig([]byte(expanded))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig parses YAML bytes into a Config, starting from defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := schedule.Validate(cfg.Schedules); err != nil {
		return nil, fmt.Errorf("validating schedules: %w", err)
	}
	return cfg, nil
}

// SaveConfigToFile writes a Config as YAML, backing up the previous file.
func SaveConfigToFile(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if existing, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".bak", existing, 0o600)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches the standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"atendebot.yaml",
		"atendebot.yml",
		"configs/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadEnvFiles loads .env files without overriding existing variables.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
// Unset variables without a default keep the placeholder.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		name, fallback := sub[1], sub[2]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		if fallback != "" {
			return fallback
		}
		return match
	})
}
