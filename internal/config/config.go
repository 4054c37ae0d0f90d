// Package config loads plancore configuration from an optional YAML file
// with PLANCORE_* environment overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
	Gate    GateConfig    `yaml:"gate"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig selects the persistent store backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory|sqlite|postgres
	Path   string `yaml:"path"`   // sqlite file path
	DSN    string `yaml:"dsn"`    // postgres dsn
}

// BlobConfig selects the attachment payload backend.
type BlobConfig struct {
	Driver string `yaml:"driver"` // fs|s3|memory
	Root   string `yaml:"root"`   // fs root directory
}

// GateConfig controls dependency gating on task completion.
type GateConfig struct {
	Policy string `yaml:"policy"` // advisory|strict
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the baseline configuration used when nothing is provided.
func Default() Config {
	return Config{
		Server:  ServerConfig{Addr: ":8080"},
		Storage: StorageConfig{Driver: "memory"},
		Blob:    BlobConfig{Driver: "fs", Root: "./blobdata"},
		Gate:    GateConfig{Policy: "advisory"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (when non-empty), then applies
// environment overrides. A missing file with an empty path is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("PLANCORE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "PLANCORE_SERVER_ADDR")
	setString(&c.Storage.Driver, "PLANCORE_STORAGE_DRIVER")
	setString(&c.Storage.Path, "PLANCORE_STORAGE_PATH")
	setString(&c.Storage.DSN, "PLANCORE_STORAGE_DSN")
	setString(&c.Blob.Driver, "PLANCORE_BLOB_DRIVER")
	setString(&c.Blob.Root, "PLANCORE_BLOB_FS_ROOT")
	setString(&c.Gate.Policy, "PLANCORE_GATE_POLICY")
	setString(&c.Log.Level, "PLANCORE_LOG_LEVEL")
	setBool(&c.Log.Development, "PLANCORE_LOG_DEVELOPMENT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = parsed
		}
	}
}

func (c Config) validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "", "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	switch strings.ToLower(c.Blob.Driver) {
	case "", "fs", "s3", "memory":
	default:
		return fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver)
	}
	switch strings.ToLower(c.Gate.Policy) {
	case "", "advisory", "strict":
	default:
		return fmt.Errorf("gate.policy: unknown policy %q", c.Gate.Policy)
	}
	return nil
}
