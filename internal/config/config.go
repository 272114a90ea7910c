// Package config loads pkgsync settings from a TOML file, a .env file and
// PKGSYNC_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/git-pkgs/pkgsync/fetch"
)

const (
	DefaultFile          = "pkgsync.toml"
	DefaultRegistryURL   = "https://aur.archlinux.org"
	DefaultOracleTimeout = 5 * time.Minute
	DefaultCacheSize     = 256
	DefaultCacheTTL      = 10 * time.Minute
)

type Config struct {
	Root          string         `toml:"root"`
	Maintainer    string         `toml:"maintainer"`
	Local         string         `toml:"local"`
	Registry      string         `toml:"registry"`
	RegistryURL   string         `toml:"registry_url"`
	Oracle        string         `toml:"oracle"`
	OracleCommand string         `toml:"oracle_command"`
	OracleTimeout time.Duration  `toml:"oracle_timeout"`
	Workers       int            `toml:"workers"`
	UserAgent     string         `toml:"user_agent"`
	Cache         CacheConfig    `toml:"cache"`
	Download      DownloadConfig `toml:"download"`
}

type CacheConfig struct {
	Size int           `toml:"size"`
	TTL  time.Duration `toml:"ttl"`
}

// DownloadConfig tunes the per-host circuit breaker used for snapshot
// downloads.
type DownloadConfig struct {
	BreakerThreshold int           `toml:"breaker_threshold"`
	BreakerCooldown  time.Duration `toml:"breaker_cooldown"`
	BreakerMaxWait   time.Duration `toml:"breaker_max_wait"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Root:          ".",
		Local:         "srcinfo",
		Registry:      "aur",
		RegistryURL:   DefaultRegistryURL,
		Oracle:        "nvchecker",
		OracleCommand: "nvchecker",
		OracleTimeout: DefaultOracleTimeout,
		Cache: CacheConfig{
			Size: DefaultCacheSize,
			TTL:  DefaultCacheTTL,
		},
		Download: DownloadConfig{
			BreakerThreshold: fetch.DefaultBreakerThreshold,
			BreakerCooldown:  fetch.DefaultBreakerCooldown,
			BreakerMaxWait:   fetch.DefaultBreakerMaxWait,
		},
	}
}

// Load reads path (skipped when empty) over the defaults, then applies a .env
// file from the working directory and the environment. A missing default
// config file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			if !(path == DefaultFile && errors.Is(err, os.ErrNotExist)) {
				return nil, err
			}
		}
	}

	_ = godotenv.Load()
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	str("PKGSYNC_ROOT", &cfg.Root)
	str("PKGSYNC_MAINTAINER", &cfg.Maintainer)
	str("PKGSYNC_REGISTRY_URL", &cfg.RegistryURL)
	str("PKGSYNC_ORACLE_COMMAND", &cfg.OracleCommand)
	str("PKGSYNC_USER_AGENT", &cfg.UserAgent)

	if v := strings.TrimSpace(os.Getenv("PKGSYNC_WORKERS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PKGSYNC_WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	if v := strings.TrimSpace(os.Getenv("PKGSYNC_ORACLE_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PKGSYNC_ORACLE_TIMEOUT: %w", err)
		}
		cfg.OracleTimeout = d
	}
	return nil
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return fmt.Errorf("config missing root")
	}
	collectors := []struct{ name, value string }{
		{"local", c.Local},
		{"registry", c.Registry},
		{"oracle", c.Oracle},
	}
	for _, col := range collectors {
		if strings.TrimSpace(col.value) == "" {
			return fmt.Errorf("config missing %s collector", col.name)
		}
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if c.OracleTimeout <= 0 {
		return fmt.Errorf("oracle_timeout must be positive")
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache size must not be negative")
	}
	if c.Cache.Size > 0 && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive when caching is enabled")
	}
	if c.Download.BreakerThreshold < 1 {
		return fmt.Errorf("download breaker_threshold must be at least 1")
	}
	if c.Download.BreakerCooldown <= 0 || c.Download.BreakerMaxWait < c.Download.BreakerCooldown {
		return fmt.Errorf("download breaker_cooldown must be positive and not above breaker_max_wait")
	}
	return nil
}
