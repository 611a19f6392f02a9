package infra

import (
	"container/list"
	"context"
	"sync"
	"time"

	"salon-web/middleware/ratelimit/domain"

	"github.com/rs/zerolog"
)

// WindowStore é a implementação em memória de domain.WindowStore.
//
// Cada chave guarda os timestamps das ações aceitas (janela deslizante). Timestamps
// fora da janela são descartados a cada chamada; chaves abandonadas saem pela limpeza
// periódica (StartJanitor) ou pelo teto de chaves (WithMaxKeys).
//
// Vale só para deploy de instância única: várias réplicas multiplicam a cota efetiva.
type WindowStore struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	// ordem de inserção das chaves, usada para despejar a mais antiga no teto
	order *list.List

	retention    time.Duration
	cleanupEvery time.Duration
	maxKeys      int
	// maior janela já vista; a limpeza nunca usa retenção menor que isso
	longest time.Duration

	now func() time.Time
	log zerolog.Logger
}

type windowEntry struct {
	hits []time.Time
	elem *list.Element
}

type StoreOption func(*WindowStore)

// WithRetention define por quanto tempo uma chave sem ações recentes sobrevive à limpeza.
func WithRetention(d time.Duration) StoreOption {
	return func(s *WindowStore) { s.retention = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *WindowStore) { s.cleanupEvery = d }
}

// WithMaxKeys limita o número de chaves; 0 desliga o teto.
func WithMaxKeys(n int) StoreOption {
	return func(s *WindowStore) { s.maxKeys = n }
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *WindowStore) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *WindowStore) { s.log = l }
}

func NewWindowStore(opts ...StoreOption) *WindowStore {
	s := &WindowStore{
		entries:      make(map[string]*windowEntry),
		order:        list.New(),
		retention:    1 * time.Hour,
		cleanupEvery: 10 * time.Minute,
		maxKeys:      10000,
		now:          time.Now,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WindowStore) Retention() time.Duration    { return s.retention }
func (s *WindowStore) CleanupEvery() time.Duration { return s.cleanupEvery }
func (s *WindowStore) MaxKeys() int                { return s.maxKeys }

// CheckAndRecord implementa domain.WindowStore.
func (s *WindowStore) CheckAndRecord(_ context.Context, key domain.Key, q domain.Quota) (domain.Decision, error) {
	if err := q.Validate(); err != nil {
		return domain.Decision{}, err
	}

	now := s.now()
	cutoff := now.Add(-q.Window)
	k := string(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if q.Window > s.longest {
		s.longest = q.Window
	}

	ent, ok := s.entries[k]
	if !ok {
		s.evictOldestLocked()
		ent = &windowEntry{elem: s.order.PushBack(k)}
		s.entries[k] = ent
	}

	// descarta timestamps fora da janela (válido: ts > now - window)
	kept := ent.hits[:0]
	for _, ts := range ent.hits {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	ent.hits = kept

	if len(ent.hits) >= q.MaxRequests {
		reset := ent.hits[0].Add(q.Window)
		return domain.Decision{
			Allowed:    false,
			Remaining:  0,
			ResetTime:  reset,
			RetryAfter: reset.Sub(now),
		}, nil
	}

	ent.hits = append(ent.hits, now)
	return domain.Decision{
		Allowed:   true,
		Remaining: q.MaxRequests - len(ent.hits),
		ResetTime: ent.hits[0].Add(q.Window),
	}, nil
}

// evictOldestLocked abre espaço para uma chave nova quando o teto foi atingido.
// Precisa ser chamado com s.mu travado.
func (s *WindowStore) evictOldestLocked() {
	if s.maxKeys <= 0 {
		return
	}
	for len(s.entries) >= s.maxKeys {
		front := s.order.Front()
		if front == nil {
			return
		}
		k := front.Value.(string)
		s.order.Remove(front)
		delete(s.entries, k)
		s.log.Debug().Str("key", k).Int("max_keys", s.maxKeys).Msg("ratelimit: evicted oldest key")
	}
}

// Reset apaga o histórico de uma chave.
func (s *WindowStore) Reset(key domain.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[string(key)]; ok {
		s.order.Remove(ent.elem)
		delete(s.entries, string(key))
	}
}

// Len retorna quantas chaves estão em memória.
func (s *WindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove chaves cuja ação mais recente é mais velha que a retenção.
// A retenção efetiva nunca é menor que a maior janela já usada, então uma cota
// ainda ativa não é zerada pela limpeza. Retorna quantas chaves saíram.
func (s *WindowStore) Cleanup() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	keep := s.retention
	if s.longest > keep {
		keep = s.longest
	}
	cutoff := now.Add(-keep)

	removed := 0
	for k, ent := range s.entries {
		if len(ent.hits) == 0 || !ent.hits[len(ent.hits)-1].After(cutoff) {
			s.order.Remove(ent.elem)
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *WindowStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.Cleanup(); n > 0 {
					s.log.Debug().Int("removed", n).Int("remaining", s.Len()).Msg("ratelimit: janitor sweep")
				}
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context no janitor.
type DoneContext interface {
	Done() <-chan struct{}
}
