// Package config resolves the bridge configuration with the precedence
// defaults < config file < environment < command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the settings for the bridge process.
type Config struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AgentsDir      string   `yaml:"agents_dir"`
	LogLevel       string   `yaml:"log_level"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	ConfigFile string `yaml:"-"`
}

// SetDefaults initializes c with built-in defaults.
func (c *Config) SetDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 58421
	}
	if c.AgentsDir == "" {
		c.AgentsDir = "./agents"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = []string{"*"}
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("config.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current values.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("TABWIRE_CONFIG_FILE"); v != "" {
		c.ConfigFile = v
	}
	if v := os.Getenv("TABWIRE_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("TABWIRE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv("TABWIRE_AGENTS_DIR"); v != "" {
		c.AgentsDir = v
	}
	if v := os.Getenv("TABWIRE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TABWIRE_ALLOWED_ORIGINS"); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		c.AllowedOrigins = origins
	}
}

// LoadFile overlays values from a YAML config file onto c. A missing file
// is reported as os.ErrNotExist for the caller to ignore.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DefaultConfigPath returns the default config file location for the
// current OS.
func DefaultConfigPath(name string) string {
	home, _ := os.UserHomeDir()
	return resolveConfigPath(runtime.GOOS, home, os.Getenv("ProgramData"), name)
}

// resolveConfigPath constructs a config file path for the given OS and base
// directories. Split out for tests.
func resolveConfigPath(goos, home, programData, name string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "tabwire", name)
	case "windows":
		if programData == "" {
			programData = "C:/ProgramData"
		}
		programData = strings.TrimRight(programData, "\\/")
		return filepath.Join(programData, "tabwire", name)
	default:
		return filepath.Join(home, ".config", "tabwire", name)
	}
}
