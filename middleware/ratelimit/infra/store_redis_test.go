package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"salon-web/middleware/ratelimit/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisWindowStore_BurstAndReset(t *testing.T) {
	_, rdb := newTestRedis(t)
	clk := newFakeClock()
	t0 := clk.Now()

	s, err := NewRedisWindowStore(rdb, WithRedisClock(clk.Now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		dec, err := s.CheckAndRecord(ctx, "1.2.3.4", formQuota)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !dec.Allowed {
			t.Fatalf("expected call %d to be allowed", i+1)
		}
		if dec.Remaining != 2-i {
			t.Fatalf("expected remaining=%d, got %d", 2-i, dec.Remaining)
		}
		clk.Advance(10 * time.Millisecond)
	}

	dec, err := s.CheckAndRecord(ctx, "1.2.3.4", formQuota)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("expected 4th call to be rejected")
	}
	if !dec.ResetTime.Equal(t0.Add(5 * time.Minute)) {
		t.Fatalf("expected reset at t0+5m, got %s", dec.ResetTime.Sub(t0))
	}
	if dec.RetryAfter <= 0 {
		t.Fatalf("expected positive RetryAfter, got %s", dec.RetryAfter)
	}
}

func TestRedisWindowStore_WindowExpiryAndIndependence(t *testing.T) {
	_, rdb := newTestRedis(t)
	clk := newFakeClock()
	s, err := NewRedisWindowStore(rdb, WithRedisClock(clk.Now), WithRedisPrefix("test:"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	q := domain.Quota{MaxRequests: 1, Window: time.Minute}

	if dec, _ := s.CheckAndRecord(ctx, "a", q); !dec.Allowed {
		t.Fatalf("expected a allowed")
	}
	if dec, _ := s.CheckAndRecord(ctx, "b", q); !dec.Allowed {
		t.Fatalf("expected b allowed independently of a")
	}
	if dec, _ := s.CheckAndRecord(ctx, "a", q); dec.Allowed {
		t.Fatalf("expected a rejected")
	}

	clk.Advance(time.Minute + time.Millisecond)

	dec, err := s.CheckAndRecord(ctx, "a", q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Allowed || dec.Remaining != 0 {
		t.Fatalf("expected allowed with remaining=0 after expiry, got %+v", dec)
	}
}

func TestRedisWindowStore_SetsKeyTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s, err := NewRedisWindowStore(rdb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.CheckAndRecord(context.Background(), "k", formQuota); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl := mr.TTL("ratelimit:window:k"); ttl != formQuota.Window {
		t.Fatalf("expected ttl=%s, got %s", formQuota.Window, ttl)
	}
}

func TestRedisWindowStore_InvalidQuota(t *testing.T) {
	_, rdb := newTestRedis(t)
	s, err := NewRedisWindowStore(rdb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = s.CheckAndRecord(context.Background(), "k", domain.Quota{MaxRequests: 3})
	if !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestRedisWindowStore_RejectsBadNodeID(t *testing.T) {
	_, rdb := newTestRedis(t)
	if _, err := NewRedisWindowStore(rdb, WithRedisNodeID(-1)); err == nil {
		t.Fatalf("expected error for invalid snowflake node id")
	}
}

func TestRedisWindowStore_ErrorWhenRedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s, err := NewRedisWindowStore(rdb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mr.Close()

	if _, err := s.CheckAndRecord(context.Background(), "k", formQuota); err == nil {
		t.Fatalf("expected error when redis is unavailable")
	}
}
