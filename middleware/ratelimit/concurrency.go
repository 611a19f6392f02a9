package ratelimit

import (
	"net/http"
	"time"

	"salon-web/middleware/ratelimit/application"
	"salon-web/middleware/ratelimit/infra"

	"github.com/rs/zerolog"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Logger         zerolog.Logger
}

// ConcurrencyMiddleware limita quantas requisições passam ao mesmo tempo pelo handler.
// Com Max <= 0 o middleware não faz nada.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
		Logger:         opts.Logger,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
