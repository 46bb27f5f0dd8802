package internal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config holds Redis connection configuration parameters
type Config struct {
	// Redis connection settings
	RedisAddr     string `json:"redis_addr" yaml:"addr"`         // Redis server address (host:port)
	RedisUsername string `json:"redis_username" yaml:"username"` // Redis ACL user (optional)
	RedisPassword string `json:"redis_password" yaml:"password"` // Redis password (optional)
	RedisDB       int    `json:"redis_db" yaml:"db"`             // Redis database number

	// Connection pool settings
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`     // go-redis level reconnect retries
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`   // Timeout for establishing connection
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`   // Timeout for socket reads
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"` // Timeout for socket writes
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`         // Maximum number of socket connections

	// Cache settings
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl"` // Used when a caller passes a non-positive TTL

	// Resilience settings
	RetryConfig   *RetryConfig   `json:"retry_config" yaml:"retry"`
	BreakerConfig *BreakerConfig `json:"breaker_config" yaml:"breaker"`
}

// RetryConfig defines retry behavior with exponential backoff
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts" yaml:"max_attempts"`   // Maximum number of attempts
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"` // Initial delay before first retry
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`         // Maximum delay between retries
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`       // Backoff multiplier
	Jitter       bool          `json:"jitter" yaml:"jitter"`               // Whether to add random jitter
	RetryableOps []string      `json:"retryable_ops" yaml:"retryable_ops"` // Operations that should be retried
}

// BreakerConfig configures the circuit breaker guarding every Redis call.
// While open, cache calls fail immediately and reads go straight to the store.
type BreakerConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled"`
	MaxRequests      uint32        `json:"max_requests" yaml:"max_requests"`           // trial requests allowed while half-open
	Interval         time.Duration `json:"interval" yaml:"interval"`                   // closed-state counter reset period
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`                     // open-state duration before half-open
	FailureThreshold float64       `json:"failure_threshold" yaml:"failure_threshold"` // failure ratio that trips the breaker
	MinRequests      uint32        `json:"min_requests" yaml:"min_requests"`           // requests needed before evaluating ratio
}

// DefaultRetryConfig returns a RetryConfig with sensible default values.
// Retries stay short: a slow cache is worse than a cache miss.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       true,
		RetryableOps: []string{"ping", "get", "set", "del", "unlink", "scan", "info"},
	}
}

// DefaultBreakerConfig returns a BreakerConfig with sensible default values
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		Enabled:          true,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      10,
	}
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		RedisAddr:     "localhost:6379",
		RedisPassword: "",
		RedisDB:       0,
		MaxRetries:    3,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   1 * time.Second,
		WriteTimeout:  1 * time.Second,
		PoolSize:      10,
		DefaultTTL:    time.Hour,
		RetryConfig:   DefaultRetryConfig(),
		BreakerConfig: DefaultBreakerConfig(),
	}
}

// RedisClientInterface defines the interface for Redis client operations
type RedisClientInterface interface {
	Health(ctx context.Context) error
	HealthWithRetry(ctx context.Context) error
	SetWithRetry(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetWithRetry(ctx context.Context, key string) (string, error)
	DelWithRetry(ctx context.Context, keys ...string) (int64, error)
	UnlinkWithRetry(ctx context.Context, keys ...string) (int64, error)
	ScanWithRetry(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	InfoWithRetry(ctx context.Context, section string) (string, error)
	BreakerState() string
	Client() *redis.Client
	Config() *Config
	Close() error
}

// RedisClient wraps the go-redis client with retry and circuit breaking
type RedisClient struct {
	client  *redis.Client
	config  *Config
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewRedisClient creates a new Redis client with the provided configuration
func NewRedisClient(config *Config, logger *zap.Logger) (*RedisClient, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// Validate configuration
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:            config.RedisAddr,
		Username:        config.RedisUsername,
		Password:        config.RedisPassword,
		DB:              config.RedisDB,
		MaxRetries:      config.MaxRetries,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 3 * time.Second,
		DialTimeout:     config.DialTimeout,
		ReadTimeout:     config.ReadTimeout,
		WriteTimeout:    config.WriteTimeout,
		PoolSize:        config.PoolSize,
	})

	return NewRedisClientWithClient(client, config, logger), nil
}

// NewRedisClientWithClient wraps an already constructed go-redis client.
// The caller keeps ownership of connection options; config supplies retry,
// breaker and TTL settings.
func NewRedisClientWithClient(client *redis.Client, config *Config, logger *zap.Logger) *RedisClient {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rc := &RedisClient{
		client: client,
		config: config,
		logger: logger,
	}

	if config.BreakerConfig != nil && config.BreakerConfig.Enabled {
		rc.breaker = newBreaker(config.BreakerConfig, logger)
	}

	return rc
}

func newBreaker(cfg *BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("redis circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: breakerNeutral,
	})
}

// breakerNeutral reports whether err leaves the breaker counts as a success.
// Misses, the caller's own cancellation or deadline, and commands the server
// does not know say nothing about Redis health.
func breakerNeutral(err error) bool {
	return err == nil ||
		errors.Is(err, redis.Nil) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		IsUnknownCommandError(err)
}

// IsUnknownCommandError reports whether the server rejected the command
// itself, as pre-4.0 servers do for UNLINK.
func IsUnknownCommandError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unknown command")
}

// ValidateConfig validates the Redis configuration parameters
func ValidateConfig(config *Config) error {
	if config.RedisAddr == "" {
		return fmt.Errorf("redis address cannot be empty")
	}

	if config.RedisDB < 0 || config.RedisDB > 15 {
		return fmt.Errorf("redis database must be between 0 and 15, got %d", config.RedisDB)
	}

	if config.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative, got %d", config.MaxRetries)
	}

	if config.DialTimeout <= 0 {
		return fmt.Errorf("dial timeout must be positive, got %v", config.DialTimeout)
	}

	if config.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive, got %v", config.ReadTimeout)
	}

	if config.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive, got %v", config.WriteTimeout)
	}

	if config.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive, got %d", config.PoolSize)
	}

	if config.DefaultTTL <= 0 {
		return fmt.Errorf("default TTL must be positive, got %v", config.DefaultTTL)
	}

	if config.RetryConfig != nil {
		if err := validateRetryConfig(config.RetryConfig); err != nil {
			return fmt.Errorf("invalid retry configuration: %w", err)
		}
	}

	if config.BreakerConfig != nil && config.BreakerConfig.Enabled {
		if err := validateBreakerConfig(config.BreakerConfig); err != nil {
			return fmt.Errorf("invalid breaker configuration: %w", err)
		}
	}

	return nil
}

// validateRetryConfig validates the retry configuration parameters
func validateRetryConfig(config *RetryConfig) error {
	if config.MaxAttempts < 0 {
		return fmt.Errorf("max attempts cannot be negative, got %d", config.MaxAttempts)
	}

	if config.InitialDelay < 0 {
		return fmt.Errorf("initial delay cannot be negative, got %v", config.InitialDelay)
	}

	if config.MaxDelay < 0 {
		return fmt.Errorf("max delay cannot be negative, got %v", config.MaxDelay)
	}

	if config.Multiplier < 1.0 {
		return fmt.Errorf("multiplier must be >= 1.0, got %f", config.Multiplier)
	}

	if config.InitialDelay > config.MaxDelay {
		return fmt.Errorf("initial delay (%v) cannot be greater than max delay (%v)", config.InitialDelay, config.MaxDelay)
	}

	return nil
}

func validateBreakerConfig(config *BreakerConfig) error {
	if config.FailureThreshold <= 0 || config.FailureThreshold > 1 {
		return fmt.Errorf("failure threshold must be in (0, 1], got %f", config.FailureThreshold)
	}

	if config.Timeout <= 0 {
		return fmt.Errorf("breaker timeout must be positive, got %v", config.Timeout)
	}

	if config.Interval < 0 {
		return fmt.Errorf("breaker interval cannot be negative, got %v", config.Interval)
	}

	return nil
}

// Health performs a health check on the Redis connection
func (rc *RedisClient) Health(ctx context.Context) error {
	pong, err := rc.client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	if pong != "PONG" {
		return fmt.Errorf("unexpected ping response: %s", pong)
	}

	return nil
}

// Client returns the underlying Redis client for direct access
func (rc *RedisClient) Client() *redis.Client {
	return rc.client
}

// Config returns the Redis client configuration
func (rc *RedisClient) Config() *Config {
	return rc.config
}

// BreakerState reports the circuit breaker state, or "disabled"
func (rc *RedisClient) BreakerState() string {
	if rc.breaker == nil {
		return "disabled"
	}
	return rc.breaker.State().String()
}

// Close closes the Redis client connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"network is unreachable",
		"no route to host",
		"broken pipe",
		"i/o timeout",
		"eof",
		// Redis-specific errors that might be retryable
		"loading",
		"busy",
		"tryagain",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// isOperationRetryable checks if the given operation should be retried
func (rc *RedisClient) isOperationRetryable(operation string) bool {
	if rc.config.RetryConfig == nil {
		return false
	}

	for _, op := range rc.config.RetryConfig.RetryableOps {
		if op == operation {
			return true
		}
	}
	return false
}

// calculateBackoffDelay calculates the delay for the next retry attempt
func (rc *RedisClient) calculateBackoffDelay(attempt int) time.Duration {
	if rc.config.RetryConfig == nil {
		return time.Second
	}

	config := rc.config.RetryConfig

	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		delay += rand.Float64() * 0.1 * delay // 10% jitter
	}

	return time.Duration(delay)
}

// execute runs fn through the circuit breaker and the retry loop
func (rc *RedisClient) execute(ctx context.Context, operation string, fn func() error) error {
	if rc.breaker == nil {
		return rc.executeWithRetry(ctx, operation, fn)
	}

	_, err := rc.breaker.Execute(func() (interface{}, error) {
		return nil, rc.executeWithRetry(ctx, operation, fn)
	})
	return err
}

// executeWithRetry executes a function with retry logic
func (rc *RedisClient) executeWithRetry(ctx context.Context, operation string, fn func() error) error {
	if !rc.isOperationRetryable(operation) || rc.config.RetryConfig.MaxAttempts <= 1 {
		return fn()
	}

	var lastErr error
	maxAttempts := rc.config.RetryConfig.MaxAttempts

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryableError(err) {
			return err
		}

		// Don't wait after the last attempt
		if attempt == maxAttempts-1 {
			break
		}

		delay := rc.calculateBackoffDelay(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("operation '%s' failed after %d attempts: %w", operation, maxAttempts, lastErr)
}

// HealthWithRetry performs a health check with retry logic
func (rc *RedisClient) HealthWithRetry(ctx context.Context) error {
	return rc.execute(ctx, "ping", func() error {
		return rc.Health(ctx)
	})
}

// SetWithRetry performs a SET operation with retry logic
func (rc *RedisClient) SetWithRetry(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return rc.execute(ctx, "set", func() error {
		return rc.client.Set(ctx, key, value, expiration).Err()
	})
}

// GetWithRetry performs a GET operation with retry logic. A missing key
// returns redis.Nil.
func (rc *RedisClient) GetWithRetry(ctx context.Context, key string) (string, error) {
	var result string
	err := rc.execute(ctx, "get", func() error {
		val, err := rc.client.Get(ctx, key).Result()
		if err != nil {
			return err
		}
		result = val
		return nil
	})
	return result, err
}

// DelWithRetry performs a DEL operation with retry logic
func (rc *RedisClient) DelWithRetry(ctx context.Context, keys ...string) (int64, error) {
	var removed int64
	err := rc.execute(ctx, "del", func() error {
		n, err := rc.client.Del(ctx, keys...).Result()
		if err != nil {
			return err
		}
		removed = n
		return nil
	})
	return removed, err
}

// UnlinkWithRetry performs an UNLINK operation with retry logic. Memory is
// reclaimed by a Redis background thread.
func (rc *RedisClient) UnlinkWithRetry(ctx context.Context, keys ...string) (int64, error) {
	var removed int64
	err := rc.execute(ctx, "unlink", func() error {
		n, err := rc.client.Unlink(ctx, keys...).Result()
		if err != nil {
			return err
		}
		removed = n
		return nil
	})
	return removed, err
}

// ScanWithRetry performs a single SCAN step with retry logic
func (rc *RedisClient) ScanWithRetry(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	var (
		keys []string
		next uint64
	)
	err := rc.execute(ctx, "scan", func() error {
		k, c, err := rc.client.Scan(ctx, cursor, match, count).Result()
		if err != nil {
			return err
		}
		keys, next = k, c
		return nil
	})
	return keys, next, err
}

// InfoWithRetry performs an INFO operation with retry logic
func (rc *RedisClient) InfoWithRetry(ctx context.Context, section string) (string, error) {
	var info string
	err := rc.execute(ctx, "info", func() error {
		val, err := rc.client.Info(ctx, section).Result()
		if err != nil {
			return err
		}
		info = val
		return nil
	})
	return info, err
}
