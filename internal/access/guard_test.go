package access

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"tradelink/internal/model"
)

type fakeSource struct {
	statuses map[int64]string
	err      error
	calls    int
}

func (f *fakeSource) GetMembership(_ context.Context, _, userID int64) (string, bool, error) {
	f.calls++
	if f.err != nil {
		return "", false, f.err
	}
	s, ok := f.statuses[userID]
	return s, ok, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string]string
	ttl  time.Duration
	err  error
}

func (m *memCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.data == nil {
		m.data = make(map[string]string)
	}
	m.data[key] = value
	m.ttl = ttl
	return nil
}

func TestGuard_Check(t *testing.T) {
	src := &fakeSource{statuses: map[int64]string{
		1: "administrator",
		2: "member",
		3: "owner",
		4: "restricted",
		5: "left",
		6: "kicked",
	}}
	g, err := NewGuard(Config{Source: src, GroupID: -100})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		user    int64
		allowed bool
	}{
		{1, true},
		{2, true},
		{3, true},
		{4, true},
		{5, false},
		{6, false},
		{99, false}, // never in the group
	}
	for _, tt := range tests {
		err := g.Check(context.Background(), tt.user)
		if tt.allowed && err != nil {
			t.Errorf("user %d: unexpected error %v", tt.user, err)
		}
		if !tt.allowed {
			if !errors.Is(err, model.ErrPermissionDenied) {
				t.Errorf("user %d: got %v, want permission denied", tt.user, err)
			}
			if got := model.CodeOf(err); got != model.CodePermissionDenied {
				t.Errorf("user %d: code = %q", tt.user, got)
			}
		}
	}
}

func TestGuard_LookupFailureDenies(t *testing.T) {
	src := &fakeSource{err: errors.New("chat not found")}
	cache := &memCache{}
	g, _ := NewGuard(Config{Source: src, GroupID: -100, Cache: cache})

	if err := g.Check(context.Background(), 1); !errors.Is(err, model.ErrPermissionDenied) {
		t.Fatalf("got %v, want permission denied", err)
	}
	if len(cache.data) != 0 {
		t.Errorf("failed lookup was cached: %v", cache.data)
	}
}

func TestGuard_UsesCache(t *testing.T) {
	src := &fakeSource{statuses: map[int64]string{1: "member"}}
	cache := &memCache{}
	g, _ := NewGuard(Config{Source: src, GroupID: -100, Cache: cache, TTL: time.Minute})

	for range 3 {
		if err := g.Check(context.Background(), 1); err != nil {
			t.Fatal(err)
		}
		if err := g.Check(context.Background(), 2); err == nil {
			t.Fatal("unknown user allowed")
		}
	}
	if src.calls != 2 {
		t.Errorf("source calls = %d, want 2", src.calls)
	}
	if cache.data["membership:-100:1"] != "member" {
		t.Errorf("cache = %v", cache.data)
	}
	if cache.data["membership:-100:2"] != notMember {
		t.Errorf("cache = %v", cache.data)
	}
	if cache.ttl != time.Minute {
		t.Errorf("ttl = %v", cache.ttl)
	}
}

func TestGuard_CacheErrorFallsBackToSource(t *testing.T) {
	src := &fakeSource{statuses: map[int64]string{1: "owner"}}
	g, _ := NewGuard(Config{Source: src, GroupID: -100, Cache: &memCache{err: errors.New("connection refused")}})

	if err := g.Check(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if src.calls != 1 {
		t.Errorf("source calls = %d, want 1", src.calls)
	}
}

func TestNewGuard_Validation(t *testing.T) {
	if _, err := NewGuard(Config{GroupID: 1}); err == nil {
		t.Error("expected error without source")
	}
	if _, err := NewGuard(Config{Source: &fakeSource{}}); err == nil {
		t.Error("expected error without group id")
	}
}

type fakeRedis struct {
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = value.(string)
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestRedisCache(t *testing.T) {
	rdb := &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
	c := NewRedisCache(rdb, "tradelink:")
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, "k", "member", 2*time.Minute); err != nil {
		t.Fatal(err)
	}
	v, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || v != "member" {
		t.Fatalf("got %q ok=%v err=%v", v, ok, err)
	}
	if rdb.ttl["tradelink:k"] != 2*time.Minute {
		t.Errorf("ttl = %v", rdb.ttl)
	}

	rdb.err = errors.New("i/o timeout")
	if _, _, err := c.Get(ctx, "k"); err == nil {
		t.Error("expected error")
	}
}
