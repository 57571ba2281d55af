package config

import (
	"embed"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BadgerConfig struct {
	Path string `yaml:"path"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type SnapshotConfig struct {
	Enabled bool   `yaml:"enabled"`
	Timeout string `yaml:"timeout"`
}

type LogConfig struct {
	Development bool `yaml:"development"`
}

type Config struct {
	Redis     RedisConfig    `yaml:"redis"`
	Badger    BadgerConfig   `yaml:"badger"`
	HTTP      HTTPConfig     `yaml:"http"`
	Snapshots SnapshotConfig `yaml:"snapshots"`
	Log       LogConfig      `yaml:"log"`
}

// RedisOptions converts the redis section into client options.
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// FetchTimeout returns the per-link download timeout, defaulting to 30s.
func (c *Config) FetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Snapshots.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

// Load reads the config at path on top of the embedded defaults.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg, err := loadDefaults()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("redis.db must not be negative, got %d", cfg.Redis.DB)
	}
	if cfg.Snapshots.Timeout != "" {
		if _, err := time.ParseDuration(cfg.Snapshots.Timeout); err != nil {
			return fmt.Errorf("snapshots.timeout: %w", err)
		}
	}
	if cfg.Snapshots.Enabled && cfg.Badger.Path == "" {
		return fmt.Errorf("snapshots need badger.path to be set")
	}
	return nil
}
