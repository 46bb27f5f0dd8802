package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

// MockRedisClient is a mock implementation of the RedisClientInterface for testing
type MockRedisClient struct {
	mock.Mock
}

// NewMockRedisClient creates a new mock Redis client
func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{}
}

// Health mocks the Health method
func (m *MockRedisClient) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// HealthWithRetry mocks the HealthWithRetry method
func (m *MockRedisClient) HealthWithRetry(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// SetWithRetry mocks the SetWithRetry method
func (m *MockRedisClient) SetWithRetry(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

// GetWithRetry mocks the GetWithRetry method
func (m *MockRedisClient) GetWithRetry(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

// DelWithRetry mocks the DelWithRetry method
func (m *MockRedisClient) DelWithRetry(ctx context.Context, keys ...string) (int64, error) {
	args := m.Called(ctx, keys)
	return args.Get(0).(int64), args.Error(1)
}

// UnlinkWithRetry mocks the UnlinkWithRetry method
func (m *MockRedisClient) UnlinkWithRetry(ctx context.Context, keys ...string) (int64, error) {
	args := m.Called(ctx, keys)
	return args.Get(0).(int64), args.Error(1)
}

// ScanWithRetry mocks the ScanWithRetry method
func (m *MockRedisClient) ScanWithRetry(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	args := m.Called(ctx, cursor, match, count)
	return args.Get(0).([]string), args.Get(1).(uint64), args.Error(2)
}

// InfoWithRetry mocks the InfoWithRetry method
func (m *MockRedisClient) InfoWithRetry(ctx context.Context, section string) (string, error) {
	args := m.Called(ctx, section)
	return args.String(0), args.Error(1)
}

// BreakerState mocks the BreakerState method
func (m *MockRedisClient) BreakerState() string {
	args := m.Called()
	return args.String(0)
}

// Client mocks the Client method
func (m *MockRedisClient) Client() *redis.Client {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*redis.Client)
}

// Config mocks the Config method
func (m *MockRedisClient) Config() *RedisConfig {
	args := m.Called()
	return args.Get(0).(*RedisConfig)
}

// Close mocks the Close method
func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockKeyGenerator is a mock implementation of the KeyGenerator for testing
type MockKeyGenerator struct {
	mock.Mock
}

// NewMockKeyGenerator creates a new mock key generator
func NewMockKeyGenerator() *MockKeyGenerator {
	return &MockKeyGenerator{}
}

// BuildKey mocks the BuildKey method
func (m *MockKeyGenerator) BuildKey(namespace, identifier string, query map[string]any) string {
	args := m.Called(namespace, identifier, query)
	return args.String(0)
}

// PatternKey mocks the PatternKey method
func (m *MockKeyGenerator) PatternKey(namespace string) string {
	args := m.Called(namespace)
	return args.String(0)
}

// ValidateKey mocks the ValidateKey method
func (m *MockKeyGenerator) ValidateKey(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

// MockStore is a mock implementation of Store for testing callers of the cache
type MockStore struct {
	mock.Mock
}

// NewMockStore creates a new mock store
func NewMockStore() *MockStore {
	return &MockStore{}
}

// Get mocks the Get method. Use Run on the expectation to fill dest.
func (m *MockStore) Get(ctx context.Context, key string, dest any) bool {
	args := m.Called(ctx, key, dest)
	return args.Bool(0)
}

// Set mocks the Set method
func (m *MockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	args := m.Called(ctx, key, value, ttl)
	return args.Bool(0)
}

// Delete mocks the Delete method
func (m *MockStore) Delete(ctx context.Context, key string) bool {
	args := m.Called(ctx, key)
	return args.Bool(0)
}

// DeleteByPattern mocks the DeleteByPattern method
func (m *MockStore) DeleteByPattern(ctx context.Context, pattern string, batchSize int) int64 {
	args := m.Called(ctx, pattern, batchSize)
	return args.Get(0).(int64)
}

// Purge mocks the Purge method
func (m *MockStore) Purge(ctx context.Context, pattern string, opts *PurgeOptions) *PurgeResult {
	args := m.Called(ctx, pattern, opts)
	return args.Get(0).(*PurgeResult)
}
