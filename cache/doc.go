// Package cache provides a Redis-based read-through cache for catalog
// entities and listings, with write-driven invalidation.
//
// This package implements a caching layer that supports:
//   - Deterministic cache keys for single entities and query-shaped listings
//   - Fail-open storage: a cache failure reads as a miss and never fails a request
//   - Read-through loading with per-kind TTLs and a cache bypass
//   - Invalidation of an entity's views and its parent's views after a write
//   - Pattern purges with SCAN and batched UNLINK
//   - Retry with exponential backoff and a circuit breaker around Redis
//   - Prometheus metrics and zap structured logging
//
// # Architecture
//
// Keys have the form <namespace>:<identifier>:
//   - Single entity: products:<id>
//   - Listing: products:<base64 of the canonical query JSON>
//   - Unfiltered listing: products
//
// Listing invalidation purges the pattern <namespace>:* and deletes the bare
// <namespace> key, which the pattern does not match.
//
// # Basic Usage
//
//	config := cache.DefaultConfig()
//	config.Redis.RedisAddr = "localhost:6379"
//
//	store, err := cache.NewRedisStore(config, cache.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	loader := cache.NewLoader(store, cache.WithTTLPolicy(config.TTL))
//
//	result, err := cache.LoadOne(ctx, loader, "products", id, func(ctx context.Context, id string) (Product, error) {
//	    return repo.GetProduct(ctx, id)
//	})
//	if err != nil {
//	    if cache.IsNotFoundError(err) {
//	        // 404
//	    }
//	    return err
//	}
//	fmt.Println(result.Data.Name, result.Source)
//
// # Invalidation
//
// A Policy maps entity kinds to namespaces and parents. After a committed
// write the Invalidator deletes the exact keys and purges the listings:
//
//	policy, _ := cache.NewPolicy(cache.CatalogRules())
//	invalidator := cache.NewInvalidator(policy, store)
//
//	report := invalidator.Invalidate(ctx, cache.Mutation{
//	    EntityKind:      cache.KindReview,
//	    EntityID:        reviewID,
//	    RelatedParentID: productID,
//	    Operation:       cache.OperationCreate,
//	})
//	if !report.Complete() {
//	    // stale views expire by TTL
//	}
//
// # Configuration
//
// Config loads from YAML through LoadConfig, with CACHE_REDIS_ADDR and
// CACHE_REDIS_PASSWORD overriding the file:
//
//	redis:
//	  addr: localhost:6379
//	  default_ttl: 1h
//	  retry:
//	    max_attempts: 2
//	  breaker:
//	    enabled: true
//	ttl:
//	  entity: 1h
//	  collection: 10m
//	purge:
//	  batch_size: 1000
//	  use_unlink: true
//
// # Error Handling
//
// Store methods never return errors; they log and report false. Loader
// functions return a *CacheError typed as NOT_FOUND, STORE_FAILURE or
// VALIDATION:
//
//	switch {
//	case cache.IsNotFoundError(err):
//	case cache.IsStoreFailureError(err):
//	case cache.IsValidationError(err):
//	}
//
// # Testing
//
//	go test ./cache ./catalog ./internal   # Unit tests, no Redis required
//	go test ./test/integration             # Integration tests (requires Docker)
package cache
