package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader is a typed read-through view over a Store. Concurrent misses on the same key
// share one call to load. A nil store disables caching; every call loads.
type Loader[V any] struct {
	store     Store
	namespace string
	group     singleflight.Group
}

// NewLoader returns a loader whose keys are prefixed with namespace.
func NewLoader[V any](store Store, namespace string) *Loader[V] {
	return &Loader[V]{store: store, namespace: namespace}
}

func (l *Loader[V]) key(k string) string {
	return l.namespace + ":" + k
}

// GetOrLoad returns the cached value for key or calls load, caching its result for ttl
// under entityIDs. Store failures are logged and fall through to load. Errors from
// load are returned and not cached. A result is not cached when one of entityIDs was
// invalidated while load ran.
func (l *Loader[V]) GetOrLoad(ctx context.Context, key string, ttl time.Duration, entityIDs []string, load func(context.Context) (V, error)) (V, error) {
	k := l.key(key)
	if l.store != nil {
		b, ok, err := l.store.Get(ctx, k)
		if err != nil {
			log.Printf("cache: get %s: %v", k, err)
		} else if ok {
			var v V
			decodeErr := json.Unmarshal(b, &v)
			if decodeErr == nil {
				return v, nil
			}
			log.Printf("cache: decode %s: %v", k, decodeErr)
		}
	}

	res, err, _ := l.group.Do(k, func() (interface{}, error) {
		var gens []uint64
		cacheable := l.store != nil
		if cacheable {
			var err error
			if gens, err = l.store.Generations(ctx, entityIDs...); err != nil {
				log.Printf("cache: generations %s: %v", k, err)
				cacheable = false
			}
		}
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		if cacheable {
			if b, err := json.Marshal(v); err != nil {
				log.Printf("cache: encode %s: %v", k, err)
			} else if _, err := l.store.SetIfCurrent(ctx, k, b, ttl, gens, entityIDs...); err != nil {
				log.Printf("cache: set %s: %v", k, err)
			}
		}
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	v, _ := res.(V)
	return v, nil
}

// Forget removes key from the store.
func (l *Loader[V]) Forget(ctx context.Context, key string) error {
	if l.store == nil {
		return nil
	}
	return l.store.Delete(ctx, l.key(key))
}
