package cache

import (
	"context"
	"time"
)

// Store is the fail-open cache surface used by the read-through loader and
// the invalidator. No method returns a transport error: failures are logged
// and reported as a miss, "not stored" or "not deleted".
type Store interface {
	// Get decodes the entry at key into dest and reports whether it was present.
	Get(ctx context.Context, key string, dest any) bool
	// Set stores value under key for ttl and reports whether it was stored.
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool
	// Delete removes key. Removing an absent key is a successful no-op.
	Delete(ctx context.Context, key string) bool
	// DeleteByPattern removes every key matching a trailing-wildcard pattern
	// and returns how many were removed.
	DeleteByPattern(ctx context.Context, pattern string, batchSize int) int64
	// Purge is DeleteByPattern with a detailed result.
	Purge(ctx context.Context, pattern string, opts *PurgeOptions) *PurgeResult
}

// PurgeResult contains information about a pattern purge
type PurgeResult struct {
	Pattern     string        `json:"pattern"`
	KeysScanned int64         `json:"keys_scanned"`
	KeysDeleted int64         `json:"keys_deleted"`
	BatchesUsed int           `json:"batches_used"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
}

// Complete reports whether the purge ran to the end of the keyspace scan.
func (r *PurgeResult) Complete() bool {
	return r.Err == nil
}

// Stats contains information about cache size and health
type Stats struct {
	Connected    bool   `json:"connected"`
	BreakerState string `json:"breaker_state"`
	UsedMemory   int64  `json:"used_memory"`      // Bytes
	PeakMemory   int64  `json:"used_memory_peak"` // Bytes
	TotalKeys    int64  `json:"total_keys"`
	ExpiringKeys int64  `json:"expiring_keys"`
	MemoryInfo   string `json:"memory_info"`
	KeyspaceInfo string `json:"keyspace_info"`
}
