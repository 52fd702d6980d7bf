// Package config reads and writes the musicng configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/stephaneeybert/musicng-sub001/pkg/score"
)

// Config holds the application settings that are not user preferences.
type Config struct {
	StorageDir   string        `yaml:"storage_dir"`
	ServerPort   int           `yaml:"server_port"`
	MIDIOutPort  string        `yaml:"midi_out_port,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval"`
	LogLevel     string        `yaml:"log_level"`
	PPQ          int           `yaml:"ppq"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return Config{
		StorageDir:   filepath.Join(dir, "musicng", "storage"),
		ServerPort:   8080,
		PollInterval: time.Second,
		LogLevel:     logrus.InfoLevel.String(),
		PPQ:          score.DefaultPPQ,
	}
}

// DefaultPath is ~/.config/musicng/config.yaml or its platform equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "musicng", "config.yaml")
}

// Load reads the file at path over the defaults. A missing file is not an
// error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the values a file may have set wrong.
func (c Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port %d out of range: %w", c.ServerPort, score.ErrInvalidArgument)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive: %w", score.ErrInvalidArgument)
	}
	if c.PPQ <= 0 {
		return fmt.Errorf("ppq must be positive: %w", score.ErrInvalidArgument)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Save writes c to path, creating the directory.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyLogLevel sets the logrus level from the configuration.
func (c Config) ApplyLogLevel() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	return nil
}
