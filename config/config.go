/*
Package config loads server configuration.

PRECEDENCE (lowest to highest):
  1. defaults()
  2. optional YAML file
  3. CONDO_* environment variables (PORT is also honoured)

Load finishes with Validate, so a returned Config is always usable.

EXAMPLE FILE:
  server:
    port: 3001
    allowed_origins: ["http://localhost:3000"]
  storage:
    session_dir: ./databases
  mapping:
    mode: heuristic
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/condo-repairs/repairs"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Uploads UploadsConfig `yaml:"uploads"`
	Mapping MappingConfig `yaml:"mapping"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	StaticDir      string        `yaml:"static_dir"`
}

type StorageConfig struct {
	SessionDir string `yaml:"session_dir"`
}

type UploadsConfig struct {
	Dir           string        `yaml:"dir"`
	MaxBytes      int64         `yaml:"max_bytes"`
	MaxAge        time.Duration `yaml:"max_age"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type MappingConfig struct {
	Mode repairs.Mode `yaml:"mode"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           3001,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			AllowedOrigins: []string{"http://localhost:3000"},
			StaticDir:      "./client/build",
		},
		Storage: StorageConfig{
			SessionDir: "./databases",
		},
		Uploads: UploadsConfig{
			Dir:           "./uploads",
			MaxBytes:      32 << 20,
			MaxAge:        time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Mapping: MappingConfig{
			Mode: repairs.ModePlain,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), and the environment.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

type envSpec struct {
	name  string
	apply func(cfg *Config, raw string) error
}

var envSpecs = []envSpec{
	// PORT first so CONDO_PORT wins when both are set.
	{"PORT", setPort},
	{"CONDO_PORT", setPort},
	{"CONDO_SESSION_DIR", func(c *Config, v string) error { c.Storage.SessionDir = v; return nil }},
	{"CONDO_UPLOAD_DIR", func(c *Config, v string) error { c.Uploads.Dir = v; return nil }},
	{"CONDO_STATIC_DIR", func(c *Config, v string) error { c.Server.StaticDir = v; return nil }},
	{"CONDO_MAPPING_MODE", func(c *Config, v string) error { c.Mapping.Mode = repairs.Mode(v); return nil }},
	{"CONDO_LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"CONDO_LOG_FORMAT", func(c *Config, v string) error { c.Log.Format = v; return nil }},
}

func setPort(c *Config, raw string) error {
	port, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", raw, err)
	}
	c.Server.Port = port
	return nil
}

func applyEnvOverrides(cfg *Config, getenv func(string) string) error {
	for _, s := range envSpecs {
		raw := strings.TrimSpace(getenv(s.name))
		if raw == "" {
			continue
		}
		if err := s.apply(cfg, raw); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Storage.SessionDir == "" {
		errs = append(errs, errors.New("storage.session_dir is required"))
	}
	if c.Uploads.Dir == "" {
		errs = append(errs, errors.New("uploads.dir is required"))
	}
	if c.Uploads.MaxBytes <= 0 {
		errs = append(errs, errors.New("uploads.max_bytes must be positive"))
	}
	if c.Uploads.MaxAge <= 0 {
		errs = append(errs, errors.New("uploads.max_age must be positive"))
	}
	if c.Uploads.SweepInterval <= 0 {
		errs = append(errs, errors.New("uploads.sweep_interval must be positive"))
	}
	switch repairs.Mode(strings.ToLower(string(c.Mapping.Mode))) {
	case repairs.ModePlain, repairs.ModeHeuristic:
	default:
		errs = append(errs, fmt.Errorf("mapping.mode must be %q or %q, got %q",
			repairs.ModePlain, repairs.ModeHeuristic, c.Mapping.Mode))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
