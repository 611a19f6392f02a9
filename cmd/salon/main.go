package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salon-web/config"
	"salon-web/forms"
	"salon-web/logger"
	"salon-web/middleware/ratelimit/domain"
	"salon-web/middleware/ratelimit/infra"
	"salon-web/notify"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/salon.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logg := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rdb *redis.Client
	if cfg.RateLimit.Storage == "redis" || cfg.Stats.Redis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logg.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis ping failed")
		}
	}

	store, err := newWindowStore(ctx, cfg, rdb, logg)
	if err != nil {
		logg.Fatal().Err(err).Msg("ratelimit store")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	memStats := infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.Stats.TrackKeys))
	stats := infra.MultiStatsStore{memStats}
	var metrics http.Handler
	if cfg.Stats.Prometheus {
		promStats, err := infra.NewPrometheusStatsStore(reg)
		if err != nil {
			logg.Fatal().Err(err).Msg("prometheus stats")
		}
		stats = append(stats, promStats)
		metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	if cfg.Stats.Redis {
		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		))
	}

	notifier, err := newNotifier(cfg, logg)
	if err != nil {
		logg.Fatal().Err(err).Msg("notifier")
	}

	formsHandler, err := forms.NewHandler(notifier, cfg.NodeID, forms.WithLogger(logg))
	if err != nil {
		logg.Fatal().Err(err).Msg("forms")
	}

	var upstream http.Handler
	if cfg.Server.UpstreamURL != "" {
		upstream, err = newUpstreamProxy(cfg.Server.UpstreamURL, logg)
		if err != nil {
			logg.Fatal().Err(err).Msg("upstream")
		}
	}

	h, err := newRouter(routerDeps{
		cfg:      cfg,
		store:    store,
		stats:    stats,
		memStats: memStats,
		forms:    formsHandler,
		metrics:  metrics,
		upstream: upstream,
		log:      logg,
	})
	if err != nil {
		logg.Fatal().Err(err).Msg("router")
	}

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logg.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	logg.Info().
		Str("addr", cfg.Server.ListenAddr).
		Str("upstream", cfg.Server.UpstreamURL).
		Msg("salon server listening")
	logg.Info().
		Bool("enabled", cfg.RateLimit.Enabled).
		Str("storage", cfg.RateLimit.Storage).
		Dur("retention", cfg.RateLimit.Retention).
		Int("max_keys", cfg.RateLimit.MaxKeys).
		Str("key_header", cfg.Server.KeyHeader).
		Bool("trust_xff", cfg.Server.TrustXFF).
		Msg("ratelimit")
	if cfg.RateLimit.Storage == "memory" {
		logg.Warn().Msg("ratelimit: in-memory store is per instance; run a single replica or switch to redis")
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Fatal().Err(err).Msg("server error")
	}
}

func newWindowStore(ctx context.Context, cfg *config.AppConfig, rdb *redis.Client, logg zerolog.Logger) (domain.WindowStore, error) {
	if cfg.RateLimit.Storage == "redis" {
		store, err := infra.NewRedisWindowStore(
			rdb,
			infra.WithRedisPrefix(cfg.Redis.Prefix),
			infra.WithRedisNodeID(cfg.NodeID),
		)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store := infra.NewWindowStore(
		infra.WithRetention(cfg.RateLimit.Retention),
		infra.WithCleanupEvery(cfg.RateLimit.CleanupEvery),
		infra.WithMaxKeys(cfg.RateLimit.MaxKeys),
		infra.WithLogger(logg),
	)
	store.StartJanitor(ctx)
	return store, nil
}

// newNotifier monta os canais configurados atrás de um throttle de saída.
// Sem SMTP nem Telegram as submissões só vão para o log.
func newNotifier(cfg *config.AppConfig, logg zerolog.Logger) (notify.Notifier, error) {
	var channels []notify.Notifier

	if cfg.Mail.SMTPHost != "" {
		mailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			To:       cfg.Mail.To,
		})
		if err != nil {
			return nil, err
		}
		channels = append(channels, mailer)
	}

	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatIDs)
		if err != nil {
			return nil, err
		}
		channels = append(channels, tg)
	}

	if len(channels) == 0 {
		logg.Warn().Msg("no delivery channel configured, form submissions will only be logged")
		channels = append(channels, notify.LogNotifier{Logger: logg})
	}

	return notify.NewThrottled(
		notify.Multi{Notifiers: channels, Logger: logg},
		cfg.Mail.SendsPerSecond,
		cfg.Mail.Burst,
	), nil
}
