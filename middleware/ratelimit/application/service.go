package application

import (
	"context"
	"errors"

	"salon-web/middleware/ratelimit/domain"

	"github.com/rs/zerolog"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Store  domain.WindowStore
	Logger zerolog.Logger
}

// Decide consulta o store e registra a ação quando permitida.
//
// Falhas do backend (ex.: Redis fora) liberam a requisição e são logadas; o único
// erro devolvido é domain.ErrInvalidConfiguration, que é bug de quem chama.
func (s Service) Decide(ctx context.Context, key domain.Key, q domain.Quota) (domain.Decision, error) {
	if key.IsUnknown() {
		s.Logger.Warn().Msg("ratelimit: client identifier unresolved, using shared bucket")
	}

	if s.Store == nil {
		return domain.Decision{Allowed: true, Remaining: q.MaxRequests}, nil
	}

	dec, err := s.Store.CheckAndRecord(ctx, key, q)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidConfiguration) {
			return domain.Decision{}, err
		}
		s.Logger.Error().Err(err).Str("key", string(key)).Msg("ratelimit: store failed, allowing request")
		return domain.Decision{Allowed: true, Remaining: q.MaxRequests}, nil
	}
	return dec, nil
}
