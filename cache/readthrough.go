package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kengibson1111/go-catalog-cache/internal"
)

// State is a step of a read-through request.
type State int

const (
	StateInit State = iota
	StateCacheCheck
	StateStoreFetch
	StatePopulate
	StateRespond
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateCacheCheck:
		return "CACHE_CHECK"
	case StateStoreFetch:
		return "STORE_FETCH"
	case StatePopulate:
		return "POPULATE"
	case StateRespond:
		return "RESPOND"
	default:
		return "UNKNOWN"
	}
}

// Source names where a Result was served from.
type Source string

const (
	SourceCache Source = "cache"
	SourceStore Source = "store"
)

// Result is the response body of a read, identical in shape whether it was
// served from the cache or rebuilt from the store.
type Result[T any] struct {
	Data    T      `json:"data"`
	Results int    `json:"results"`
	Source  Source `json:"-"`
}

// FetchOneFunc loads a single entity from the primary store. It returns
// ErrNotFound (optionally wrapped) when the entity does not exist.
type FetchOneFunc[T any] func(ctx context.Context, id string) (T, error)

// FetchManyFunc loads a listing from the primary store.
type FetchManyFunc[T any] func(ctx context.Context, query map[string]any) ([]T, error)

// Loader runs read-through requests against a Store.
type Loader struct {
	store     Store
	keyGen    internal.KeyGenerator
	validator *internal.InputValidator
	ttl       TTLPolicy
	logger    *zap.Logger
	metrics   *Metrics
	onState   func(key string, state State)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithTTLPolicy sets the populate TTLs.
func WithTTLPolicy(ttl TTLPolicy) LoaderOption {
	return func(l *Loader) {
		l.ttl = ttl
	}
}

// WithKeyGenerator sets the key codec.
func WithKeyGenerator(keyGen internal.KeyGenerator) LoaderOption {
	return func(l *Loader) {
		if keyGen != nil {
			l.keyGen = keyGen
		}
	}
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLoaderMetrics sets the Prometheus collectors.
func WithLoaderMetrics(metrics *Metrics) LoaderOption {
	return func(l *Loader) {
		l.metrics = metrics
	}
}

// WithStateHook registers fn to be called on every state a request enters.
func WithStateHook(fn func(key string, state State)) LoaderOption {
	return func(l *Loader) {
		l.onState = fn
	}
}

// NewLoader creates a Loader over store.
func NewLoader(store Store, opts ...LoaderOption) *Loader {
	l := &Loader{
		store:     store,
		keyGen:    internal.NewKeyGenerator(),
		validator: internal.NewInputValidator(),
		ttl:       DefaultTTLPolicy(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type bypassKey struct{}

// WithBypass marks ctx so that reads skip the cache entirely: no lookup and
// no populate. For callers that need the store's current state.
func WithBypass(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey{}, true)
}

func bypassed(ctx context.Context) bool {
	v, _ := ctx.Value(bypassKey{}).(bool)
	return v
}

// LoadOne reads a single entity through the cache at namespace:id.
func LoadOne[T any](ctx context.Context, l *Loader, namespace, id string, fetch FetchOneFunc[T]) (*Result[T], error) {
	if err := l.validator.ValidateIdentifier(id, true); err != nil {
		return nil, err
	}

	key := l.keyGen.BuildKey(namespace, id, nil)
	return load(ctx, l, key, l.ttl.Entity, func(ctx context.Context) (*Result[T], error) {
		data, err := fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		return &Result[T]{Data: data, Results: 1}, nil
	})
}

// LoadMany reads a listing through the cache at namespace:hash(query).
func LoadMany[T any](ctx context.Context, l *Loader, namespace string, query map[string]any, fetch FetchManyFunc[T]) (*Result[[]T], error) {
	key := l.keyGen.BuildKey(namespace, "", query)
	return load(ctx, l, key, l.ttl.Collection, func(ctx context.Context) (*Result[[]T], error) {
		items, err := fetch(ctx, query)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []T{}
		}
		return &Result[[]T]{Data: items, Results: len(items)}, nil
	})
}

func load[T any](ctx context.Context, l *Loader, key string, ttl time.Duration, fetch func(context.Context) (*Result[T], error)) (*Result[T], error) {
	if err := l.validator.ValidateContext(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	resource := resourceOf(key)
	skipCache := bypassed(ctx)

	var result *Result[T]
	state := StateInit
	for {
		if l.onState != nil {
			l.onState(key, state)
		}

		switch state {
		case StateInit:
			if skipCache {
				state = StateStoreFetch
			} else {
				state = StateCacheCheck
			}

		case StateCacheCheck:
			var cached Result[T]
			if l.store.Get(ctx, key, &cached) {
				l.metrics.hit(resource)
				cached.Source = SourceCache
				result = &cached
				state = StateRespond
				continue
			}
			l.metrics.miss(resource)
			state = StateStoreFetch

		case StateStoreFetch:
			fetched, err := fetch(ctx)
			if err != nil {
				if errors.Is(err, ErrNotFound) || internal.IsNotFoundError(err) {
					return nil, internal.NewCacheError(internal.ErrorTypeNotFound, key, "resource not found", err)
				}
				l.logger.Error("store fetch failed", zap.String("key", key), zap.Error(err))
				return nil, internal.NewStoreFailureError(key, err)
			}
			fetched.Source = SourceStore
			result = fetched
			if skipCache {
				state = StateRespond
			} else {
				state = StatePopulate
			}

		case StatePopulate:
			l.metrics.populate(resource, l.store.Set(ctx, key, result, ttl))
			state = StateRespond

		case StateRespond:
			elapsed := time.Since(start)
			l.metrics.observeLoad(resource, string(result.Source), elapsed)
			l.logger.Debug("read-through served",
				zap.String("key", key),
				zap.String("source", string(result.Source)),
				zap.Duration("duration", elapsed),
			)
			return result, nil

		default:
			return nil, internal.NewCacheError(internal.ErrorTypeValidation, key, "unknown read-through state "+state.String(), nil)
		}
	}
}
