package cache

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kengibson1111/go-catalog-cache/internal"
)

// RedisConfig holds connection, retry and circuit breaker settings for Redis.
type RedisConfig = internal.Config

// RetryConfig defines retry behavior with exponential backoff.
type RetryConfig = internal.RetryConfig

// BreakerConfig configures the circuit breaker around Redis calls.
type BreakerConfig = internal.BreakerConfig

// DefaultRedisConfig returns a RedisConfig with sensible default values.
func DefaultRedisConfig() *RedisConfig {
	return internal.DefaultConfig()
}

// TTLPolicy sets how long read-through entries live. Single-entity views
// change less often than listings and are cheaper to keep consistent, so
// they live longer.
type TTLPolicy struct {
	Entity     time.Duration `yaml:"entity"`
	Collection time.Duration `yaml:"collection"`
}

// DefaultTTLPolicy returns the default read-through TTLs.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Entity:     time.Hour,
		Collection: 10 * time.Minute,
	}
}

// PurgeOptions configures pattern purges.
type PurgeOptions struct {
	BatchSize int   `yaml:"batch_size"` // keys per bulk delete
	ScanCount int64 `yaml:"scan_count"` // SCAN COUNT hint; 0 uses BatchSize
	UseUnlink bool  `yaml:"use_unlink"` // prefer UNLINK over DEL
}

// DefaultBatchSize is the purge batch size used when none is configured.
const DefaultBatchSize = 1000

// DefaultPurgeOptions returns the default purge options.
func DefaultPurgeOptions() PurgeOptions {
	return PurgeOptions{
		BatchSize: DefaultBatchSize,
		UseUnlink: true,
	}
}

// Config is the complete cache layer configuration, loadable from YAML.
type Config struct {
	Redis *RedisConfig `yaml:"redis"`
	TTL   TTLPolicy    `yaml:"ttl"`
	Purge PurgeOptions `yaml:"purge"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Redis: DefaultRedisConfig(),
		TTL:   DefaultTTLPolicy(),
		Purge: DefaultPurgeOptions(),
	}
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.Redis == nil {
		return fmt.Errorf("redis configuration is required")
	}

	if err := internal.ValidateConfig(c.Redis); err != nil {
		return err
	}

	validator := internal.NewInputValidator()
	if err := validator.ValidateTTL(c.TTL.Entity, false); err != nil {
		return fmt.Errorf("entity ttl: %w", err)
	}
	if err := validator.ValidateTTL(c.TTL.Collection, false); err != nil {
		return fmt.Errorf("collection ttl: %w", err)
	}

	if c.Purge.BatchSize < 0 {
		return fmt.Errorf("purge batch size cannot be negative, got %d", c.Purge.BatchSize)
	}
	if c.Purge.ScanCount < 0 {
		return fmt.Errorf("purge scan count cannot be negative, got %d", c.Purge.ScanCount)
	}

	return nil
}

// LoadConfig reads a YAML file on top of DefaultConfig and applies
// environment overrides (CACHE_REDIS_ADDR, CACHE_REDIS_PASSWORD).
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	// #nosec G304 - path comes from the operator, not from request input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func (c *Config) applyEnv() {
	if c.Redis == nil {
		c.Redis = DefaultRedisConfig()
	}
	if addr := os.Getenv("CACHE_REDIS_ADDR"); addr != "" {
		c.Redis.RedisAddr = addr
	}
	if password := os.Getenv("CACHE_REDIS_PASSWORD"); password != "" {
		c.Redis.RedisPassword = password
	}
}
