// Package config loads the worker configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Listen is the address the worker serves the pages on.
	Listen string `yaml:"listen"`
	// Origin is the upstream site, scheme://host[:port].
	Origin string `yaml:"origin"`
	// OriginHost overrides the Host header (and TLS server name) sent to
	// the origin.
	OriginHost string `yaml:"originHost"`

	Cache struct {
		// Name and Version together identify the current cache
		// generation, e.g. sg-study-site + v1.0.0.
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		// Provider is one of memory, sqlite, leveldb, badger.
		Provider string `yaml:"provider"`
		// Path is the provider's database file or directory.
		Path string `yaml:"path"`
	} `yaml:"cache"`

	Precache struct {
		Core     []string `yaml:"core"`
		Optional []string `yaml:"optional"`
	} `yaml:"precache"`

	Routes struct {
		// NetworkFirst lists URL substrings routed network-first, in
		// order, checked before the static-suffix test.
		NetworkFirst []string `yaml:"networkFirst"`
	} `yaml:"routes"`

	// Offline is the navigation fallback page path.
	Offline string `yaml:"offline"`

	// WarmupDelay defers optional-resource caching after activation.
	WarmupDelay string `yaml:"warmupDelay"`

	Sync struct {
		// Path is the pending-queue database file.
		Path string `yaml:"path"`
		// Endpoints maps sync tags to origin paths.
		Endpoints map[string]string `yaml:"endpoints"`
	} `yaml:"sync"`

	warmupDur time.Duration
}

// Default returns the configuration used when no file is given.
// The origin still has to be set by the caller.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a YAML configuration file.
func Load(filename string) (Config, error) {
	var cfg Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(configBytes, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Cache.Name == "" {
		c.Cache.Name = "sg-study-site"
	}
	if c.Cache.Version == "" {
		c.Cache.Version = "v1.0.0"
	}
	if c.Cache.Provider == "" {
		c.Cache.Provider = "sqlite"
	}
	if c.Cache.Path == "" {
		c.Cache.Path = "cache.db"
	}
	if c.Offline == "" {
		c.Offline = "/offline.html"
	}
	if c.WarmupDelay == "" {
		c.WarmupDelay = "5s"
	}
	if c.Sync.Path == "" {
		c.Sync.Path = "sync.db"
	}
	if len(c.Sync.Endpoints) == 0 {
		c.Sync.Endpoints = map[string]string{
			"study-data-sync":   "/api/sync/study-data",
			"quiz-results-sync": "/api/sync/quiz-results",
		}
	}
	if len(c.Routes.NetworkFirst) == 0 {
		c.Routes.NetworkFirst = []string{"/api/", "/auth/", "/sync/"}
	}
	if d, err := time.ParseDuration(c.WarmupDelay); err == nil {
		c.warmupDur = d
	}
}

func (c *Config) validate() error {
	if c.Origin == "" {
		return fmt.Errorf("origin is required")
	}
	c.Origin = strings.TrimRight(c.Origin, "/")
	dur, err := time.ParseDuration(c.WarmupDelay)
	if err != nil {
		return fmt.Errorf("warmupDelay: %w", err)
	}
	c.warmupDur = dur
	return nil
}

// GenerationID returns the current cache generation id.
func (c *Config) GenerationID() string {
	return c.Cache.Name + "-" + c.Cache.Version
}

// WarmupDuration returns the parsed warmup delay.
func (c *Config) WarmupDuration() time.Duration {
	return c.warmupDur
}
