package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"salon-web/config"
	"salon-web/forms"
	"salon-web/middleware/ratelimit"
	"salon-web/middleware/ratelimit/domain"
	"salon-web/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

type routerDeps struct {
	cfg      *config.AppConfig
	store    domain.WindowStore
	stats    domain.StatsStore
	memStats *infra.MemoryStatsStore
	forms    *forms.Handler
	metrics  http.Handler
	upstream http.Handler
	log      zerolog.Logger
}

func newRouter(d routerDeps) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(d.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", dur).
			Msg("http request")
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if d.metrics != nil {
		r.Handle("/metrics", d.metrics)
	}
	if d.cfg.Server.DebugEndpoints && d.memStats != nil {
		r.Get("/debug/ratelimit", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_ = json.NewEncoder(w).Encode(d.memStats.Snapshot())
		})
	}

	concurrency := ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            d.cfg.Concurrency.Max,
		AcquireTimeout: d.cfg.Concurrency.AcquireTimeout,
		Logger:         d.log,
	})

	handlers := map[string]http.Handler{
		config.ScopeBooking:    d.forms.Booking(),
		config.ScopeVoucher:    d.forms.Voucher(),
		config.ScopeContact:    d.forms.Contact(),
		config.ScopeNewsletter: d.forms.Newsletter(),
	}

	var routeErr error
	r.Route("/api", func(api chi.Router) {
		for _, scope := range config.FormScopes {
			chain := []func(http.Handler) http.Handler{}
			if d.cfg.RateLimit.Enabled {
				rl, err := ratelimit.Middleware(ratelimit.Options{
					Store:               d.store,
					Stats:               d.stats,
					Logger:              d.log,
					KeyHeader:           d.cfg.Server.KeyHeader,
					TrustXForwardedFor:  d.cfg.Server.TrustXFF,
					Scope:               scope,
					Quota:               d.cfg.RateLimit.Rules[scope].Quota(),
					AddRateLimitHeaders: d.cfg.Server.AddRateLimitHeaders,
				})
				if err != nil {
					routeErr = err
					return
				}
				chain = append(chain, rl)
			}
			// o limite por IP vem antes: requisição bloqueada não ocupa vaga de envio
			chain = append(chain, concurrency)
			api.With(chain...).Post("/"+scope, handlers[scope].ServeHTTP)
		}
	})
	if routeErr != nil {
		return nil, routeErr
	}

	if d.upstream != nil {
		r.NotFound(d.upstream.ServeHTTP)
	}
	return r, nil
}

// newUpstreamProxy repassa as páginas do site estático (tudo fora de /api).
func newUpstreamProxy(raw string, log zerolog.Logger) (http.Handler, error) {
	target, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("proxy error")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
	return proxy, nil
}
