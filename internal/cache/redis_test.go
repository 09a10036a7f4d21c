package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// newRedisStore connects to REDIS_ADDR; the test is skipped when unset or unreachable.
func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}
	rdb, err := NewRedisClient(context.Background(), RedisConfig{Addr: addr})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	s := NewRedisStore(rdb, "fleetac-test-"+uuid.NewString())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStore_GetSetInvalidate(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("Get missing = (%v, %v), want miss", ok, err)
	}
	if err := s.Set(ctx, "membership:u1:o1", []byte("dispatcher"), time.Minute, "u1", "o1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := s.Get(ctx, "membership:u1:o1")
	if err != nil || !ok || string(got) != "dispatcher" {
		t.Fatalf("Get = (%q, %v, %v)", got, ok, err)
	}
	if err := s.Invalidate(ctx, "o1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "membership:u1:o1"); ok {
		t.Error("entry should be invalidated")
	}
}

func TestRedisStore_SetIfCurrent(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	gens, err := s.Generations(ctx, "u1")
	if err != nil || len(gens) != 1 || gens[0] != 0 {
		t.Fatalf("Generations = (%v, %v)", gens, err)
	}
	if err := s.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if ok, err := s.SetIfCurrent(ctx, "user:u1", []byte("stale"), time.Minute, gens, "u1"); ok || err != nil {
		t.Errorf("SetIfCurrent after Invalidate = (%v, %v), want (false, nil)", ok, err)
	}
	if _, ok, _ := s.Get(ctx, "user:u1"); ok {
		t.Error("stale value should not be cached")
	}

	gens, _ = s.Generations(ctx, "u1")
	if gens[0] != 1 {
		t.Errorf("generation = %d, want 1", gens[0])
	}
	if ok, err := s.SetIfCurrent(ctx, "user:u1", []byte("fresh"), time.Minute, gens, "u1"); !ok || err != nil {
		t.Errorf("SetIfCurrent = (%v, %v), want stored", ok, err)
	}
}

func TestRedisStore_KeyNamespacing(t *testing.T) {
	s := NewRedisStore(nil, "")
	if got := s.valueKey("user:u1"); got != "fleetac:v:user:u1" {
		t.Errorf("valueKey = %q", got)
	}
	if got := s.entityKey("u1"); got != "fleetac:e:u1" {
		t.Errorf("entityKey = %q", got)
	}
	if got := s.genKey("u1"); got != "fleetac:g:u1" {
		t.Errorf("genKey = %q", got)
	}
}
