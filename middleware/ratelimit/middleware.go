package ratelimit

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"salon-web/middleware/ratelimit/application"
	"salon-web/middleware/ratelimit/domain"

	"github.com/rs/zerolog"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	Store  domain.WindowStore
	Stats  domain.StatsStore
	Logger zerolog.Logger

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool

	// Scope separa os buckets por formulário: "booking:1.2.3.4" não divide cota
	// com "contact:1.2.3.4".
	Scope string
	Quota domain.Quota

	RejectStatus        int
	AddRateLimitHeaders bool
}

type rejectBody struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if ip := strings.TrimSpace(parts[0]); ip != "" {
					return ip
				}
			}
			if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
				return ip
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return string(domain.UnknownKey)
	}
}

// Middleware limita as requisições por chave do cliente segundo opts.Quota.
// Uma cota inválida é erro de configuração e falha aqui, no wiring.
func Middleware(opts Options) (func(next http.Handler) http.Handler, error) {
	if err := opts.Quota.Validate(); err != nil {
		return nil, fmt.Errorf("ratelimit %q: %w", opts.Scope, err)
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}

	svc := application.Service{
		Store:  opts.Store,
		Logger: opts.Logger.With().Str("scope", opts.Scope).Logger(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident := opts.KeyFn(r)
			key := ident
			if opts.Scope != "" {
				key = opts.Scope + ":" + ident
			}

			dec, err := svc.Decide(r.Context(), domain.Key(key), opts.Quota)
			if err != nil {
				opts.Logger.Error().Err(err).Str("scope", opts.Scope).Msg("ratelimit: decision failed")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			if opts.Stats != nil {
				if err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     domain.Key(ident),
					Scope:   opts.Scope,
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				}); err != nil {
					opts.Logger.Debug().Err(err).Msg("ratelimit: stats record failed")
				}
			}

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Limit", formatInt(opts.Quota.MaxRequests))
				w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				if !dec.ResetTime.IsZero() {
					w.Header().Set("X-RateLimit-Reset", formatInt64(dec.ResetTime.Unix()))
				}
			}

			if !dec.Allowed {
				secs := retryAfterSeconds(dec.RetryAfter)
				opts.Logger.Info().
					Str("scope", opts.Scope).
					Str("key", ident).
					Int("retry_after_s", secs).
					Msg("ratelimit: request rejected")

				w.Header().Set("Retry-After", formatInt(secs))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(opts.RejectStatus)
				_ = json.NewEncoder(w).Encode(rejectBody{
					Error:             "rate_limited",
					Message:           RetryMessage(r.Header.Get("Accept-Language"), dec.RetryAfter),
					RetryAfterSeconds: secs,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

// retryAfterSeconds arredonda para cima: o cliente nunca deve voltar cedo demais.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
