// Package config loads the YAML configuration of the panoview server and
// snapshot commands.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP viewer settings.
type ServerConfig struct {
	Addr          string `yaml:"addr"`           // listen address, e.g. ":8080"
	PanoramaRoot  string `yaml:"panorama_root"`  // directory scanned for picture + .pnv pairs
	ThumbnailSize int    `yaml:"thumbnail_size"` // longest thumbnail edge in pixels
	SessionIdleS  int    `yaml:"session_idle_s"` // seconds before an idle viewing session is dropped
	BookmarkDir   string `yaml:"bookmark_dir"`   // saved viewpoint storage, empty = <panorama_root>/.panoview
}

// SnapshotConfig holds defaults for rendered snapshot output.
type SnapshotConfig struct {
	Width       int `yaml:"width"`
	Height      int `yaml:"height"`
	JPEGQuality int `yaml:"jpeg_quality"`
}

// Config aggregates all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":8080",
			PanoramaRoot:  ".",
			ThumbnailSize: 256,
			SessionIdleS:  300,
		},
		Snapshot: SnapshotConfig{
			Width:       1920,
			Height:      1080,
			JPEGQuality: 90,
		},
	}
}

// Load reads a YAML file and returns the configuration. Missing fields fall
// back to their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Basic validation
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.PanoramaRoot == "" {
		cfg.Server.PanoramaRoot = "."
	}
	if cfg.Server.ThumbnailSize <= 0 {
		cfg.Server.ThumbnailSize = 256
	}
	if cfg.Server.ThumbnailSize > 2048 {
		return nil, fmt.Errorf("thumbnail_size must be <= 2048, got %d", cfg.Server.ThumbnailSize)
	}
	if cfg.Server.SessionIdleS <= 0 {
		cfg.Server.SessionIdleS = 300
	}
	if cfg.Snapshot.Width <= 0 || cfg.Snapshot.Height <= 0 {
		return nil, fmt.Errorf("snapshot size must be positive, got %dx%d", cfg.Snapshot.Width, cfg.Snapshot.Height)
	}
	if cfg.Snapshot.JPEGQuality < 1 || cfg.Snapshot.JPEGQuality > 100 {
		return nil, fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", cfg.Snapshot.JPEGQuality)
	}

	return cfg, nil
}

// SessionIdle returns the idle timeout of viewing sessions.
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.Server.SessionIdleS) * time.Second
}
