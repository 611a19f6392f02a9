package notify

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttled limita a vazão de saída para o provedor (token bucket global).
// Não substitui a cota por cliente; protege a conta SMTP/bot de rajadas somadas.
type Throttled struct {
	next Notifier
	lim  *rate.Limiter
}

func NewThrottled(next Notifier, perSecond float64, burst int) *Throttled {
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{next: next, lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Notify espera por um token ou até o ctx acabar.
func (t *Throttled) Notify(ctx context.Context, msg Message) error {
	if err := t.lim.Wait(ctx); err != nil {
		return fmt.Errorf("notify throttle: %w", err)
	}
	return t.next.Notify(ctx, msg)
}
