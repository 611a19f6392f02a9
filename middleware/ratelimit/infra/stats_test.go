package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"salon-web/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMemoryStatsStore_CountsByScope(t *testing.T) {
	s := NewMemoryStatsStore()
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Key: "1.2.3.4", Scope: "booking", Allowed: true})
	_ = s.Record(ctx, domain.StatsEvent{Key: "1.2.3.4", Scope: "booking", Allowed: false})
	_ = s.Record(ctx, domain.StatsEvent{Key: "5.6.7.8", Scope: "contact", Allowed: true})

	if got := s.Total(); got.Allowed != 2 || got.Denied != 1 {
		t.Fatalf("unexpected totals: %+v", got)
	}
	if got := s.ByScope()["booking"]; got.Allowed != 1 || got.Denied != 1 {
		t.Fatalf("unexpected booking counters: %+v", got)
	}
	if len(s.ByKey()) != 0 {
		t.Fatalf("expected keys not tracked by default")
	}
	if snap := s.Snapshot(); snap.ByKey != nil {
		t.Fatalf("expected snapshot without keys")
	}
}

func TestMemoryStatsStore_TrackKeys(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	_ = s.Record(context.Background(), domain.StatsEvent{Key: "1.2.3.4", Scope: "voucher", Allowed: false})

	if got := s.ByKey()["1.2.3.4"]; got.Denied != 1 {
		t.Fatalf("expected denied=1 for key, got %+v", got)
	}
}

func TestRedisStatsStore_IncrementsHashes(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStatsStore(rdb, WithStatsPrefix("stats:"), WithStatsTrackKeys(true), WithStatsTTL(time.Hour))
	at := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

	err := s.Record(context.Background(), domain.StatsEvent{Key: "1.2.3.4", Scope: "booking", Allowed: true, At: at})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := mr.HGet("stats:total", "allowed"); got != "1" {
		t.Fatalf("expected total allowed=1, got %q", got)
	}
	if got := mr.HGet("stats:scope", "booking:allowed"); got != "1" {
		t.Fatalf("expected scope counter=1, got %q", got)
	}
	if got := mr.HGet("stats:minute:202405100930", "allowed"); got != "1" {
		t.Fatalf("expected minute bucket=1, got %q", got)
	}
	if ttl := mr.TTL("stats:key:1.2.3.4"); ttl != time.Hour {
		t.Fatalf("expected key ttl=1h, got %s", ttl)
	}
}

func TestRedisStatsStore_HourBucket(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStatsStore(rdb, WithStatsPrefix("stats"), WithStatsBucket("hour"))
	at := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

	_ = s.Record(context.Background(), domain.StatsEvent{Scope: "contact", Allowed: false, At: at})

	if got := mr.HGet("stats:hour:2024051009", "denied"); got != "1" {
		t.Fatalf("expected hour bucket denied=1, got %q", got)
	}
	if mr.Exists("stats:key:") {
		t.Fatalf("keys should not be tracked by default")
	}
}

func TestRedisStatsStore_NilIsNoop(t *testing.T) {
	var s *RedisStatsStore
	if err := s.Record(context.Background(), domain.StatsEvent{}); err != nil {
		t.Fatalf("expected nil store to be a no-op, got %v", err)
	}
}

func TestPrometheusStatsStore_CountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPrometheusStatsStore(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Scope: "newsletter", Allowed: true})
	_ = s.Record(ctx, domain.StatsEvent{Scope: "newsletter", Allowed: false})
	_ = s.Record(ctx, domain.StatsEvent{Scope: "newsletter", Allowed: false})

	if got := testutil.ToFloat64(s.Decisions().WithLabelValues("newsletter", "denied")); got != 2 {
		t.Fatalf("expected 2 denied, got %v", got)
	}
	if _, err := NewPrometheusStatsStore(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

type failingStats struct{}

func (failingStats) Record(context.Context, domain.StatsEvent) error { return errors.New("boom") }

func TestMultiStatsStore_RecordsEverywhereAndJoinsErrors(t *testing.T) {
	mem := NewMemoryStatsStore()
	m := MultiStatsStore{failingStats{}, nil, mem}

	err := m.Record(context.Background(), domain.StatsEvent{Scope: "contact", Allowed: true})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if got := mem.Total().Allowed; got != 1 {
		t.Fatalf("expected memory store to still record, got %d", got)
	}
}

func TestChanPool_BlocksUntilRelease(t *testing.T) {
	p := NewChanPool(1)

	release, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected second acquire to time out")
	}

	release()
	release2, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected acquire after release to succeed")
	}
	release2()
}
