package application

import (
	"context"
	"time"

	"salon-web/middleware/ratelimit/domain"

	"github.com/rs/zerolog"
)

// ConcurrencyService limita quantos envios de formulário rodam ao mesmo tempo
// (cada envio segura uma conexão SMTP/Telegram), sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
	Logger         zerolog.Logger
}

// Acquire tenta adquirir uma vaga.
// - Se `AcquireTimeout <= 0`, espera até o ctx da requisição encerrar.
// - Se `AcquireTimeout > 0`, espera no máximo o timeout.
// Retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida e release é no-op.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if !ok {
		s.Logger.Warn().Dur("acquire_timeout", s.AcquireTimeout).Msg("concurrency: no free slot")
		return func() {}, false
	}
	return release, true
}
