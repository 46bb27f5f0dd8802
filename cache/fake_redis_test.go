package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kengibson1111/go-catalog-cache/internal"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

// fakeRedis is an in-memory RedisClientInterface. SCAN cursors resume after
// the last key returned, so keys deleted mid-scan never cause skips.
type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	cursors []string

	down         bool
	noUnlink     bool
	failScanAt   int // fail the n-th SCAN call (1-based); 0 never
	failDeleteAt int // fail the n-th UNLINK/DEL call (1-based); 0 never

	getCalls    int
	setCalls    int
	scanCalls   int
	unlinkCalls int
	delCalls    int
	batches     [][]string
}

var _ internal.RedisClientInterface = (*fakeRedis)(nil)

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (f *fakeRedis) seed(keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		f.data[k] = `{"data":"seed","results":1}`
	}
}

func (f *fakeRedis) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

func (f *fakeRedis) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.data))
	for k := range f.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// storeCalls counts every command sent to the fake.
func (f *fakeRedis) storeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls + f.setCalls + f.scanCalls + f.unlinkCalls + f.delCalls
}

func (f *fakeRedis) ttl(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}

func (f *fakeRedis) Health(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errConnRefused
	}
	return nil
}

func (f *fakeRedis) HealthWithRetry(ctx context.Context) error {
	return f.Health(ctx)
}

func (f *fakeRedis) SetWithRetry(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	if f.down {
		return errConnRefused
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	default:
		f.data[key] = fmt.Sprint(v)
	}
	f.ttls[key] = expiration
	return nil
}

func (f *fakeRedis) GetWithRetry(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.down {
		return "", errConnRefused
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeRedis) remove(keys []string) (int64, error) {
	if f.down {
		return 0, errConnRefused
	}
	if f.failDeleteAt > 0 && f.unlinkCalls+f.delCalls == f.failDeleteAt {
		return 0, errors.New("i/o timeout")
	}
	f.batches = append(f.batches, append([]string(nil), keys...))
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			delete(f.ttls, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeRedis) DelWithRetry(ctx context.Context, keys ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delCalls++
	return f.remove(keys)
}

func (f *fakeRedis) UnlinkWithRetry(ctx context.Context, keys ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noUnlink {
		return 0, errors.New("ERR unknown command 'UNLINK'")
	}
	f.unlinkCalls++
	return f.remove(keys)
}

func (f *fakeRedis) ScanWithRetry(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanCalls++
	if f.down {
		return nil, 0, errConnRefused
	}
	if f.failScanAt > 0 && f.scanCalls == f.failScanAt {
		return nil, 0, errors.New("i/o timeout")
	}

	after := ""
	if cursor > 0 {
		after = f.cursors[cursor-1]
	}

	var matched []string
	for k := range f.data {
		if k > after && globMatch(match, k) {
			matched = append(matched, k)
		}
	}
	sort.Strings(matched)

	if int64(len(matched)) <= count {
		return matched, 0, nil
	}
	page := matched[:count]
	f.cursors = append(f.cursors, page[len(page)-1])
	return page, uint64(len(f.cursors)), nil
}

func (f *fakeRedis) InfoWithRetry(ctx context.Context, section string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return "", errConnRefused
	}
	switch section {
	case "memory":
		return "# Memory\r\nused_memory:1048576\r\nused_memory_peak:2097152\r\n", nil
	case "keyspace":
		return fmt.Sprintf("# Keyspace\r\ndb0:keys=%d,expires=%d,avg_ttl=0\r\n", len(f.data), len(f.ttls)), nil
	}
	return "", nil
}

func (f *fakeRedis) BreakerState() string {
	return "closed"
}

func (f *fakeRedis) Client() *redis.Client {
	return nil
}

func (f *fakeRedis) Config() *RedisConfig {
	return DefaultRedisConfig()
}

func (f *fakeRedis) Close() error {
	return nil
}

func (f *fakeRedis) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func globMatch(pattern, key string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}

func newFakeStore(opts ...Option) (*RedisStore, *fakeRedis) {
	fake := newFakeRedis()
	return NewRedisStoreWithDependencies(fake, internal.NewKeyGenerator(), DefaultConfig(), opts...), fake
}
