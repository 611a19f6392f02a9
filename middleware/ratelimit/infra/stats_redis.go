package infra

import (
	"context"
	"strings"
	"time"

	"salon-web/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// Layouts de série temporal aceitos por WithStatsBucket.
var statsBucketLayouts = map[string]string{
	"minute": "200601021504",
	"hour":   "2006010215",
}

// RedisStatsStore grava os contadores de decisão em hashes do Redis:
//
//	<prefix>:total            allowed / denied
//	<prefix>:scope            <scope>:allowed / <scope>:denied
//	<prefix>:<bucket>:<hora>  allowed / denied (expira com ttl)
//	<prefix>:key:<ip>         allowed / denied (expira com ttl, só com trackKeys)
type RedisStatsStore struct {
	rdb       *redis.Client
	prefix    string
	ttl       time.Duration
	bucket    string
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsBucket escolhe a série temporal: "minute" (padrão), "hour" ou "none".
func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "salon:ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	outcome := "denied"
	if ev.Allowed {
		outcome = "allowed"
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, s.prefix+":total", outcome, 1)
		if scope := strings.TrimSpace(ev.Scope); scope != "" {
			pipe.HIncrBy(ctx, s.prefix+":scope", scope+":"+outcome, 1)
		}
		if layout, ok := statsBucketLayouts[s.bucket]; ok {
			s.incrExpiring(ctx, pipe, s.prefix+":"+s.bucket+":"+at.UTC().Format(layout), outcome)
		}
		if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
			s.incrExpiring(ctx, pipe, s.prefix+":key:"+k, outcome)
		}
		return nil
	})
	return err
}

func (s *RedisStatsStore) incrExpiring(ctx context.Context, pipe redis.Pipeliner, key, outcome string) {
	pipe.HIncrBy(ctx, key, outcome, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}
