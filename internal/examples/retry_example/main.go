package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kengibson1111/go-catalog-cache/internal"
)

func main() {
	fmt.Println("=== Redis Retry and Circuit Breaker Example ===")
	fmt.Println("This example demonstrates how cache calls degrade when Redis fails")
	fmt.Println()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	addr := os.Getenv("CACHE_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	for i, config := range createRetryConfigurations(addr) {
		fmt.Printf("=== Configuration %d: %s ===\n", i+1, config.name)
		fmt.Printf("Max Attempts: %d\n", config.config.RetryConfig.MaxAttempts)
		fmt.Printf("Initial Delay: %v\n", config.config.RetryConfig.InitialDelay)
		fmt.Printf("Max Delay: %v\n", config.config.RetryConfig.MaxDelay)
		fmt.Printf("Multiplier: %.1f\n", config.config.RetryConfig.Multiplier)
		fmt.Println()

		demonstrateRetryBehavior(config.config, config.name, logger)
		fmt.Println()
	}

	fmt.Println("=== Circuit Breaker Example ===")
	demonstrateCircuitBreaker(logger)

	fmt.Println()
	fmt.Println("=== Retry and Circuit Breaker Example Complete ===")
}

type retryConfig struct {
	name   string
	config *internal.Config
}

func createRetryConfigurations(addr string) []retryConfig {
	// Default: short retries, a slow cache is worse than a miss
	defaultConfig := internal.DefaultConfig()
	defaultConfig.RedisAddr = addr

	// Patient: tolerates a Redis failover
	patientConfig := internal.DefaultConfig()
	patientConfig.RedisAddr = addr
	patientConfig.RetryConfig = &internal.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryableOps: []string{"ping", "get", "set", "del", "unlink", "scan", "info"},
	}

	// No retry: every failure goes straight to the breaker
	noRetryConfig := internal.DefaultConfig()
	noRetryConfig.RedisAddr = addr
	noRetryConfig.RetryConfig = &internal.RetryConfig{
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1.0,
	}

	return []retryConfig{
		{"Default", defaultConfig},
		{"Patient Retry", patientConfig},
		{"No Retry", noRetryConfig},
	}
}

func demonstrateRetryBehavior(config *internal.Config, configName string, logger *zap.Logger) {
	client, err := internal.NewRedisClient(config, logger)
	if err != nil {
		log.Printf("Failed to create client for %s: %v", configName, err)
		return
	}
	defer client.Close()

	ctx := context.Background()

	fmt.Println("1. Testing health check...")
	start := time.Now()
	if err := client.HealthWithRetry(ctx); err != nil {
		fmt.Printf("✗ Health check failed: %v (took %v)\n", err, time.Since(start))
		return
	}
	fmt.Printf("✓ Health check succeeded (took %v)\n", time.Since(start))

	fmt.Println("2. Testing SET/GET/UNLINK with retry...")
	testKey := fmt.Sprintf("retry-test:%d", time.Now().UnixNano())
	testValue := "retry-test-value"

	start = time.Now()
	if err := client.SetWithRetry(ctx, testKey, testValue, time.Minute); err != nil {
		fmt.Printf("✗ SET failed: %v (took %v)\n", err, time.Since(start))
		return
	}
	fmt.Printf("✓ SET succeeded (took %v)\n", time.Since(start))

	value, err := client.GetWithRetry(ctx, testKey)
	switch {
	case err != nil:
		fmt.Printf("✗ GET failed: %v\n", err)
	case value != testValue:
		fmt.Printf("✗ GET returned wrong value: got '%s', expected '%s'\n", value, testValue)
	default:
		fmt.Println("✓ GET returned the stored value")
	}

	if n, err := client.UnlinkWithRetry(ctx, testKey); err == nil {
		fmt.Printf("✓ UNLINK removed %d key(s)\n", n)
	}

	fmt.Println("3. Retry delays for failed attempts:")
	for attempt := 0; attempt < config.RetryConfig.MaxAttempts-1; attempt++ {
		delay := float64(config.RetryConfig.InitialDelay)
		for i := 0; i < attempt; i++ {
			delay *= config.RetryConfig.Multiplier
		}
		delay = min(delay, float64(config.RetryConfig.MaxDelay))
		fmt.Printf("  Before attempt %d: %v (plus up to 10%% jitter)\n", attempt+2, time.Duration(delay))
	}
}

func demonstrateCircuitBreaker(logger *zap.Logger) {
	config := internal.DefaultConfig()
	config.RedisAddr = "127.0.0.1:1" // nothing listens here
	config.DialTimeout = 100 * time.Millisecond
	config.MaxRetries = 0
	config.RetryConfig.MaxAttempts = 1
	config.BreakerConfig.MinRequests = 3
	config.BreakerConfig.FailureThreshold = 0.5
	config.BreakerConfig.Timeout = 2 * time.Second

	fmt.Printf("Breaker trips after %d requests at a %.0f%% failure ratio, retries after %v\n",
		config.BreakerConfig.MinRequests, config.BreakerConfig.FailureThreshold*100, config.BreakerConfig.Timeout)
	fmt.Println()

	client, err := internal.NewRedisClient(config, logger)
	if err != nil {
		log.Printf("Failed to create client: %v", err)
		return
	}
	defer client.Close()

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		start := time.Now()
		_, err := client.GetWithRetry(ctx, "products:demo")
		fmt.Printf("Call %d: breaker=%s took=%v err=%v\n", i, client.BreakerState(), time.Since(start).Round(time.Millisecond), err)
	}

	_, err = client.GetWithRetry(ctx, "products:demo")
	cacheErr := internal.NewCacheUnavailableError("products:demo", "redis unreachable", err)
	fmt.Printf("\nA store classifies this as %s and reads fall through to the primary store\n", cacheErr.Type)
}
