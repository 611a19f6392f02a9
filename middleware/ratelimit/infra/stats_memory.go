package infra

import (
	"context"
	"sync"

	"salon-web/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// MemoryStatsStore é uma implementação simples em memória.
// Alimenta o endpoint de debug e os testes.
//
// Não faz expiração; com WithTrackKeys a memória cresce com o número de IPs.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byScope map[string]Counters
	byKey   map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byScope: make(map[string]Counters),
		byKey:   make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Allowed)

	c := s.byScope[ev.Scope]
	c.add(ev.Allowed)
	s.byScope[ev.Scope] = c

	if s.trackKeys {
		k := s.byKey[string(ev.Key)]
		k.add(ev.Allowed)
		s.byKey[string(ev.Key)] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByScope() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byScope))
	for k, v := range s.byScope {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}

// Snapshot agrega tudo num valor só, pronto para serializar.
type Snapshot struct {
	Total   Counters            `json:"total"`
	ByScope map[string]Counters `json:"by_scope"`
	ByKey   map[string]Counters `json:"by_key,omitempty"`
}

func (s *MemoryStatsStore) Snapshot() Snapshot {
	snap := Snapshot{Total: s.Total(), ByScope: s.ByScope()}
	if s.trackKeys {
		snap.ByKey = s.ByKey()
	}
	return snap
}
