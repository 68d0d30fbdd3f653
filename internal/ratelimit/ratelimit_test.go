package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLocalTokenBucket(t *testing.T) {
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLocal(1, 2, WithClock(c.Now))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, err := l.Allow(ctx, "1.2.3.4"); !ok || err != nil {
			t.Fatalf("request %d should pass: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := l.Allow(ctx, "1.2.3.4"); ok {
		t.Fatal("burst exhausted, expected rejection")
	}
	if ok, _ := l.Allow(ctx, "5.6.7.8"); !ok {
		t.Fatal("other keys have their own bucket")
	}
	c.Advance(time.Second)
	if ok, _ := l.Allow(ctx, "1.2.3.4"); !ok {
		t.Fatal("token should refill after a second")
	}
}

func TestLocalSweepsIdleKeys(t *testing.T) {
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLocal(10, 10, WithClock(c.Now))
	ctx := context.Background()
	_, _ = l.Allow(ctx, "a")
	_, _ = l.Allow(ctx, "b")
	c.Advance(10 * time.Minute)
	_, _ = l.Allow(ctx, "c")
	if l.Len() != 1 {
		t.Fatalf("expected idle keys to be swept, have %d", l.Len())
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisFixedWindow(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedis(client, "test", 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "ip:1.2.3.4")
		if err != nil || !ok {
			t.Fatalf("request %d should pass: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, err := l.Allow(ctx, "ip:1.2.3.4"); err != nil || ok {
		t.Fatalf("expected rejection, ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("test:ip:1.2.3.4"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("window expiry not set: %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if ok, err := l.Allow(ctx, "ip:1.2.3.4"); err != nil || !ok {
		t.Fatalf("new window should admit, ok=%v err=%v", ok, err)
	}
	if err := l.Reset(ctx, "ip:1.2.3.4"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if mr.Exists("test:ip:1.2.3.4") {
		t.Fatal("reset should delete the counter")
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()
	l := NewRedis(client, "test", 1, time.Minute)
	if _, err := l.Allow(context.Background(), "k"); err == nil {
		t.Fatal("expected error with redis down")
	}
}

type failing struct{}

func (failing) Allow(context.Context, string) (bool, error) {
	return false, errors.New("backend down")
}

func TestGuardedPolicy(t *testing.T) {
	ctx := context.Background()
	if !NewGuarded(failing{}, FailOpen).Allow(ctx, "k") {
		t.Fatal("fail-open should admit on error")
	}
	if NewGuarded(failing{}, FailClosed).Allow(ctx, "k") {
		t.Fatal("fail-closed should reject on error")
	}
	l := NewLocal(1, 1)
	g := NewGuarded(l, FailClosed)
	if !g.Allow(ctx, "k") || g.Allow(ctx, "k") {
		t.Fatal("limiter answers pass through when there is no error")
	}
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{"": FailOpen, "open": FailOpen, "CLOSED": FailClosed}
	for in, want := range cases {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q)=%v,%v", in, got, err)
		}
	}
	if _, err := ParsePolicy("sometimes"); !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("expected ErrUnknownPolicy, got %v", err)
	}
}
