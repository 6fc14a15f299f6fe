// Package config loads the daemon configuration with precedence
// ENV > file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully merged daemon configuration.
type Config struct {
	Listen     string        `yaml:"listen"`
	DataDir    string        `yaml:"data_dir"`
	MediaRoots []string      `yaml:"media_roots"`
	VideoExts  []string      `yaml:"video_exts"`
	Watch      bool          `yaml:"watch"`
	LogLevel   string        `yaml:"log_level"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// DBPath returns the location of the SQLite database inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "reelbox.db")
}

// ExportDir returns the directory playlist exports are written to.
func (c *Config) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

func defaults() *Config {
	return &Config{
		Listen:     ":8080",
		DataDir:    "/var/lib/reelbox",
		VideoExts:  []string{".mp4", ".mkv", ".webm", ".avi", ".mov"},
		Watch:      true,
		LogLevel:   "info",
		SessionTTL: 7 * 24 * time.Hour,
	}
}

// Loader merges configuration sources in a fixed precedence order.
type Loader struct {
	path string
}

// NewLoader creates a loader for the optional YAML file at path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load produces the merged, validated configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := defaults()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("REELBOX_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("REELBOX_DATA"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("REELBOX_MEDIA_ROOTS"); v != "" {
		cfg.MediaRoots = splitList(v)
	}
	if v := os.Getenv("REELBOX_VIDEO_EXTS"); v != "" {
		cfg.VideoExts = splitList(v)
	}
	if v := os.Getenv("REELBOX_WATCH"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Watch = parsed
		}
	}
	if v := os.Getenv("REELBOX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REELBOX_SESSION_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.SessionTTL = parsed
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if c.Listen == "" {
		return fmt.Errorf("config: listen must not be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: session_ttl must be positive")
	}
	for _, root := range c.MediaRoots {
		if !filepath.IsAbs(root) {
			return fmt.Errorf("config: media root %q must be absolute", root)
		}
	}
	for _, ext := range c.VideoExts {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("config: video extension %q must start with a dot", ext)
		}
	}
	return nil
}
