package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kengibson1111/go-catalog-cache/internal"
)

// RedisStore implements Store using Redis as the backend
type RedisStore struct {
	client    internal.RedisClientInterface
	keyGen    internal.KeyGenerator
	validator *internal.InputValidator
	config    *Config
	logger    *zap.Logger
	metrics   *Metrics
}

// Option configures optional RedisStore collaborators
type Option func(*RedisStore)

// WithLogger sets the logger used for swallowed cache failures
func WithLogger(logger *zap.Logger) Option {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus collectors
func WithMetrics(metrics *Metrics) Option {
	return func(s *RedisStore) {
		s.metrics = metrics
	}
}

// NewRedisStore creates a new Redis-backed store and its connection pool
func NewRedisStore(config *Config, opts ...Option) (*RedisStore, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache configuration: %w", err)
	}

	store := newRedisStore(nil, internal.NewKeyGenerator(), config, opts)

	client, err := internal.NewRedisClient(config.Redis, store.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client: %w", err)
	}
	store.client = client

	return store, nil
}

// NewRedisStoreWithClient creates a store over an existing go-redis client,
// e.g. one shared with other components of the process
func NewRedisStoreWithClient(client *redis.Client, config *Config, opts ...Option) *RedisStore {
	if config == nil {
		config = DefaultConfig()
	}

	store := newRedisStore(nil, internal.NewKeyGenerator(), config, opts)
	store.client = internal.NewRedisClientWithClient(client, config.Redis, store.logger)
	return store
}

// NewRedisStoreWithDependencies creates a new Redis store with injected dependencies for testing
func NewRedisStoreWithDependencies(client internal.RedisClientInterface, keyGen internal.KeyGenerator, config *Config, opts ...Option) *RedisStore {
	if config == nil {
		config = DefaultConfig()
	}
	return newRedisStore(client, keyGen, config, opts)
}

func newRedisStore(client internal.RedisClientInterface, keyGen internal.KeyGenerator, config *Config, opts []Option) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyGen:    keyGen,
		validator: internal.NewInputValidator(),
		config:    config,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// KeyGenerator returns the key codec used by this store
func (s *RedisStore) KeyGenerator() internal.KeyGenerator {
	return s.keyGen
}

// Get retrieves the entry at key and decodes it into dest
func (s *RedisStore) Get(ctx context.Context, key string, dest any) bool {
	if err := s.keyGen.ValidateKey(key); err != nil {
		s.report("get", internal.NewValidationError(fmt.Sprintf("invalid key '%s'", key), err))
		return false
	}

	data, err := s.client.GetWithRetry(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false
		}
		s.report("get", classify(key, "failed to read entry", err))
		return false
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		s.report("get", internal.NewSerializationError(key, "failed to unmarshal entry", err))
		return false
	}

	return true
}

// Set stores value under key with TTL support
func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if err := s.keyGen.ValidateKey(key); err != nil {
		s.report("set", internal.NewValidationError(fmt.Sprintf("invalid key '%s'", key), err))
		return false
	}

	// Use default TTL if not specified
	if ttl <= 0 {
		ttl = s.config.Redis.DefaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.report("set", internal.NewSerializationError(key, "failed to marshal entry", err))
		return false
	}

	if err := s.client.SetWithRetry(ctx, key, data, ttl); err != nil {
		s.report("set", classify(key, "failed to store entry", err))
		return false
	}

	return true
}

// Delete removes a single key
func (s *RedisStore) Delete(ctx context.Context, key string) bool {
	if err := s.keyGen.ValidateKey(key); err != nil {
		s.report("delete", internal.NewValidationError(fmt.Sprintf("invalid key '%s'", key), err))
		return false
	}

	if _, err := s.client.DelWithRetry(ctx, key); err != nil {
		s.report("delete", classify(key, "failed to delete entry", err))
		return false
	}

	return true
}

// DeleteByPattern removes every key matching pattern, batchSize keys per
// bulk delete. batchSize <= 0 uses the configured batch size.
func (s *RedisStore) DeleteByPattern(ctx context.Context, pattern string, batchSize int) int64 {
	opts := s.config.Purge
	if batchSize > 0 {
		opts.BatchSize = batchSize
	}

	return s.Purge(ctx, pattern, &opts).KeysDeleted
}

// Purge walks the keyspace with SCAN and removes matching keys batch by
// batch, so memory stays bounded by one batch however large the namespace.
// A scan or delete failure stops the purge; the result carries an
// INVALIDATION_INCOMPLETE error and the keys already removed stay removed.
func (s *RedisStore) Purge(ctx context.Context, pattern string, opts *PurgeOptions) *PurgeResult {
	start := time.Now()
	result := &PurgeResult{Pattern: pattern}
	defer func() {
		result.Duration = time.Since(start)
		s.metrics.purged(pattern, result.KeysDeleted)
	}()

	if opts == nil {
		defaults := s.config.Purge
		opts = &defaults
	}

	if err := s.validator.ValidatePattern(pattern); err != nil {
		result.Err = err
		s.report("purge", err)
		return result
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	scanCount := opts.ScanCount
	if scanCount <= 0 {
		scanCount = int64(batchSize)
	}

	batch := make([]string, 0, batchSize)
	var cursor uint64
	for {
		keys, next, err := s.client.ScanWithRetry(ctx, cursor, pattern, scanCount)
		if err != nil {
			result.Err = internal.NewInvalidationIncompleteError(pattern, result.KeysDeleted, err)
			s.report("purge", result.Err)
			return result
		}
		result.KeysScanned += int64(len(keys))

		for _, key := range keys {
			batch = append(batch, key)
			if len(batch) < batchSize {
				continue
			}
			if err := s.deleteBatch(ctx, batch, opts.UseUnlink, result); err != nil {
				result.Err = internal.NewInvalidationIncompleteError(pattern, result.KeysDeleted, err)
				s.report("purge", result.Err)
				return result
			}
			batch = make([]string, 0, batchSize)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(batch) > 0 {
		if err := s.deleteBatch(ctx, batch, opts.UseUnlink, result); err != nil {
			result.Err = internal.NewInvalidationIncompleteError(pattern, result.KeysDeleted, err)
			s.report("purge", result.Err)
		}
	}

	return result
}

// deleteBatch removes one batch, preferring UNLINK and falling back to DEL
// on servers that do not know it.
func (s *RedisStore) deleteBatch(ctx context.Context, keys []string, useUnlink bool, result *PurgeResult) error {
	var (
		removed int64
		err     error
	)

	if useUnlink {
		removed, err = s.client.UnlinkWithRetry(ctx, keys...)
		if internal.IsUnknownCommandError(err) {
			s.logger.Debug("UNLINK not supported, falling back to DEL", zap.Error(err))
			removed, err = s.client.DelWithRetry(ctx, keys...)
		}
	} else {
		removed, err = s.client.DelWithRetry(ctx, keys...)
	}

	if err != nil {
		return err
	}

	result.KeysDeleted += removed
	result.BatchesUsed++
	return nil
}

// Health performs a health check on the cache
func (s *RedisStore) Health(ctx context.Context) error {
	if err := s.client.HealthWithRetry(ctx); err != nil {
		return classify("", "health check failed", err)
	}
	return nil
}

// Stats reports memory and keyspace usage of the Redis database
func (s *RedisStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{BreakerState: s.client.BreakerState()}

	memory, err := s.client.InfoWithRetry(ctx, "memory")
	if err != nil {
		return stats, classify("", "failed to read memory info", err)
	}
	keyspace, err := s.client.InfoWithRetry(ctx, "keyspace")
	if err != nil {
		return stats, classify("", "failed to read keyspace info", err)
	}

	stats.Connected = true
	stats.MemoryInfo = memory
	stats.KeyspaceInfo = keyspace

	fields := parseInfo(memory)
	stats.UsedMemory, _ = strconv.ParseInt(fields["used_memory"], 10, 64)
	stats.PeakMemory, _ = strconv.ParseInt(fields["used_memory_peak"], 10, 64)

	db := fmt.Sprintf("db%d", s.config.Redis.RedisDB)
	if entry, ok := parseInfo(keyspace)[db]; ok {
		for _, part := range strings.Split(entry, ",") {
			name, value, found := strings.Cut(part, "=")
			if !found {
				continue
			}
			n, _ := strconv.ParseInt(value, 10, 64)
			switch name {
			case "keys":
				stats.TotalKeys = n
			case "expires":
				stats.ExpiringKeys = n
			}
		}
	}

	return stats, nil
}

// Close closes the cache connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// report logs a swallowed failure and counts it
func (s *RedisStore) report(operation string, err error) {
	var cacheErr *internal.CacheError
	errType := internal.ErrorTypeCacheUnavailable
	if errors.As(err, &cacheErr) {
		errType = cacheErr.Type
	}

	s.metrics.cacheError(operation, errType)
	s.logger.Warn("cache operation failed",
		zap.String("operation", operation),
		zap.String("type", errType.String()),
		zap.Error(err),
	)
}

// Helper functions to identify error types

func classify(key, message string, err error) *internal.CacheError {
	if isTimeoutError(err) {
		return internal.NewTimeoutError(key, message, err)
	}
	return internal.NewCacheUnavailableError(key, message, err)
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

// parseInfo turns an INFO reply into a field map, skipping section headers
func parseInfo(info string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if name, value, ok := strings.Cut(line, ":"); ok {
			fields[name] = value
		}
	}
	return fields
}

// GetValue is a typed convenience over Store.Get
func GetValue[T any](ctx context.Context, store Store, key string) (T, bool) {
	var value T
	if !store.Get(ctx, key, &value) {
		var zero T
		return zero, false
	}
	return value, true
}
