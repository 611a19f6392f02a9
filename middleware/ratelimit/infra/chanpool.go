package infra

import (
	"context"

	"salon-web/middleware/ratelimit/domain"
)

// sendSlots é um semáforo em channel: cada vaga ocupada é um struct{} no buffer.
type sendSlots chan struct{}

// NewChanPool cria um pool com `size` vagas. size <= 0 vira 1.
func NewChanPool(size int) domain.SlotPool {
	return make(sendSlots, max(size, 1))
}

func (p sendSlots) Acquire(ctx context.Context) (func(), bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	select {
	case p <- struct{}{}:
		return func() { <-p }, true
	case <-ctx.Done():
		return nil, false
	}
}
