package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salon-web/middleware/ratelimit/domain"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
)

// windowScript faz poda, contagem e registro numa única operação atômica no Redis.
//
// KEYS[1] = sorted set da chave; ARGV = now(ms), window(ms), limit, member.
// Retorna {allowed, remaining, oldest(ms)}.
var windowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  count = count + 1
  allowed = 1
end

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
  oldest = tonumber(first[2])
end
return {allowed, limit - count, oldest}
`)

// RedisWindowStore implementa domain.WindowStore em sorted sets do Redis.
//
// É o backend para mais de uma instância: todas as réplicas enxergam a mesma janela.
// A expiração das chaves fica a cargo do TTL do Redis, então não há janitor.
type RedisWindowStore struct {
	rdb    *redis.Client
	prefix string
	nodeID int64
	ids    *snowflake.Node
	now    func() time.Time
}

type RedisStoreOption func(*RedisWindowStore)

func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(s *RedisWindowStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithRedisNodeID define o nó snowflake usado para gerar membros únicos do sorted set.
// Réplicas diferentes devem usar ids diferentes.
func WithRedisNodeID(id int64) RedisStoreOption {
	return func(s *RedisWindowStore) { s.nodeID = id }
}

func WithRedisClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisWindowStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewRedisWindowStore(rdb *redis.Client, opts ...RedisStoreOption) (*RedisWindowStore, error) {
	s := &RedisWindowStore{
		rdb:    rdb,
		prefix: "ratelimit:window",
		nodeID: 1,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	node, err := snowflake.NewNode(s.nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", s.nodeID, err)
	}
	s.ids = node
	return s, nil
}

// CheckAndRecord implementa domain.WindowStore.
func (s *RedisWindowStore) CheckAndRecord(ctx context.Context, key domain.Key, q domain.Quota) (domain.Decision, error) {
	if err := q.Validate(); err != nil {
		return domain.Decision{}, err
	}

	now := s.now()
	windowMs := q.Window.Milliseconds()
	if windowMs < 1 {
		windowMs = 1
	}

	res, err := windowScript.Run(ctx, s.rdb,
		[]string{s.prefix + ":" + string(key)},
		now.UnixMilli(), windowMs, q.MaxRequests, s.ids.Generate().String(),
	).Int64Slice()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("redis window script: %w", err)
	}
	if len(res) != 3 {
		return domain.Decision{}, fmt.Errorf("redis window script: unexpected reply %v", res)
	}

	remaining := int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	reset := time.UnixMilli(res[2] + windowMs)

	if res[0] == 1 {
		return domain.Decision{Allowed: true, Remaining: remaining, ResetTime: reset}, nil
	}

	retry := reset.Sub(now)
	if retry < 0 {
		retry = 0
	}
	return domain.Decision{Allowed: false, Remaining: 0, ResetTime: reset, RetryAfter: retry}, nil
}
