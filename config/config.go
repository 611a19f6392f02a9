// Package config carrega a configuração do servidor: YAML (opcional), .env e
// variáveis de ambiente, nessa ordem de precedência crescente.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"salon-web/middleware/ratelimit/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Scopes dos formulários protegidos pelo rate limit.
const (
	ScopeBooking    = "booking"
	ScopeVoucher    = "voucher"
	ScopeContact    = "contact"
	ScopeNewsletter = "newsletter"
)

var FormScopes = []string{ScopeBooking, ScopeVoucher, ScopeContact, ScopeNewsletter}

// AppConfig holds all configuration loaded from YAML, .env and env vars.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	RateLimit   RateLimitConfig   `yaml:"ratelimit"`
	Redis       RedisConfig       `yaml:"redis"`
	Stats       StatsConfig       `yaml:"stats"`
	Mail        MailConfig        `yaml:"mail"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	// NodeID identifica a instância nos ids snowflake (0..1023).
	NodeID int64 `yaml:"node_id"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// UpstreamURL é o site estático; rotas fora da API são repassadas para ele.
	UpstreamURL         string        `yaml:"upstream_url"`
	TrustXFF            bool          `yaml:"trust_xff"`
	KeyHeader           string        `yaml:"key_header"`
	AddRateLimitHeaders bool          `yaml:"add_ratelimit_headers"`
	DebugEndpoints      bool          `yaml:"debug_endpoints"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RuleConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// UnmarshalYAML completa só os campos ausentes com o padrão dos formulários.
// Um zero explícito ("max_requests: 0") é mantido e reprovado em validate.
func (r *RuleConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		MaxRequests *int           `yaml:"max_requests"`
		Window      *time.Duration `yaml:"window"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	*r = defaultFormRule
	if raw.MaxRequests != nil {
		r.MaxRequests = *raw.MaxRequests
	}
	if raw.Window != nil {
		r.Window = *raw.Window
	}
	return nil
}

func (r RuleConfig) Quota() domain.Quota {
	return domain.Quota{MaxRequests: r.MaxRequests, Window: r.Window}
}

type RateLimitConfig struct {
	Enabled      bool                  `yaml:"enabled"`
	Storage      string                `yaml:"storage"`
	Retention    time.Duration         `yaml:"retention"`
	CleanupEvery time.Duration         `yaml:"cleanup_every"`
	MaxKeys      int                   `yaml:"max_keys"`
	Rules        map[string]RuleConfig `yaml:"rules"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type StatsConfig struct {
	Redis      bool          `yaml:"redis"`
	Prometheus bool          `yaml:"prometheus"`
	Prefix     string        `yaml:"prefix"`
	TTL        time.Duration `yaml:"ttl"`
	Bucket     string        `yaml:"bucket"`
	TrackKeys  bool          `yaml:"track_keys"`
}

type MailConfig struct {
	SMTPHost       string   `yaml:"smtp_host"`
	SMTPPort       int      `yaml:"smtp_port"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	From           string   `yaml:"from"`
	To             []string `yaml:"to"`
	SendsPerSecond float64  `yaml:"sends_per_second"`
	Burst          int      `yaml:"burst"`
}

type TelegramConfig struct {
	Token   string  `yaml:"token"`
	ChatIDs []int64 `yaml:"chat_ids"`
}

type ConcurrencyConfig struct {
	Max            int           `yaml:"max"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// Load lê o YAML (se existir), o .env do diretório atual (se existir), aplica as
// variáveis de ambiente e valida.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			b, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("parse yaml: %w", err)
			}
		}
	}

	// .env nunca sobrescreve variáveis já exportadas
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := overrideFromEnv(cfg); err != nil {
		return nil, err
	}
	cfg.fillRuleDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var defaultFormRule = RuleConfig{MaxRequests: 3, Window: 5 * time.Minute}

func defaultRules() map[string]RuleConfig {
	return map[string]RuleConfig{
		ScopeBooking:    defaultFormRule,
		ScopeVoucher:    defaultFormRule,
		ScopeContact:    defaultFormRule,
		ScopeNewsletter: defaultFormRule,
	}
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			ListenAddr:          ":8080",
			AddRateLimitHeaders: true,
			ShutdownTimeout:     10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		RateLimit: RateLimitConfig{
			Enabled:      true,
			Storage:      "memory",
			Retention:    time.Hour,
			CleanupEvery: 10 * time.Minute,
			MaxKeys:      10000,
			Rules:        defaultRules(),
		},
		Redis: RedisConfig{Prefix: "salon:ratelimit"},
		Stats: StatsConfig{
			Prometheus: true,
			Prefix:     "salon:ratelimit:stats",
			TTL:        24 * time.Hour,
			Bucket:     "minute",
		},
		Mail: MailConfig{
			SMTPPort:       587,
			SendsPerSecond: 2,
			Burst:          5,
		},
		Concurrency: ConcurrencyConfig{
			Max:            20,
			AcquireTimeout: 5 * time.Second,
		},
		NodeID: 1,
	}
}

// fillRuleDefaults recoloca o padrão só nas regras que não aparecem em lugar nenhum
// (ex.: "rules:" vazio no YAML). Regras presentes, mesmo com zero, ficam como estão.
func (c *AppConfig) fillRuleDefaults() {
	if c.RateLimit.Rules == nil {
		c.RateLimit.Rules = map[string]RuleConfig{}
	}
	for name, def := range defaultRules() {
		if _, ok := c.RateLimit.Rules[name]; !ok {
			c.RateLimit.Rules[name] = def
		}
	}
}

func overrideFromEnv(cfg *AppConfig) error {
	e := envReader{}

	e.str("LISTEN_ADDR", &cfg.Server.ListenAddr)
	e.str("UPSTREAM_URL", &cfg.Server.UpstreamURL)
	e.boolean("TRUST_XFF", &cfg.Server.TrustXFF)
	e.str("RATE_KEY_HEADER", &cfg.Server.KeyHeader)
	e.boolean("ADD_RATELIMIT_HEADERS", &cfg.Server.AddRateLimitHeaders)
	e.boolean("DEBUG_ENDPOINTS", &cfg.Server.DebugEndpoints)
	e.duration("SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	e.str("LOG_LEVEL", &cfg.Logging.Level)
	e.str("LOG_FORMAT", &cfg.Logging.Format)

	e.boolean("RATE_ENABLED", &cfg.RateLimit.Enabled)
	e.str("RATE_STORAGE", &cfg.RateLimit.Storage)
	e.duration("RATE_RETENTION", &cfg.RateLimit.Retention)
	e.duration("RATE_CLEANUP_EVERY", &cfg.RateLimit.CleanupEvery)
	e.integer("RATE_MAX_KEYS", &cfg.RateLimit.MaxKeys)
	if cfg.RateLimit.Rules == nil {
		cfg.RateLimit.Rules = map[string]RuleConfig{}
	}
	for _, scope := range FormScopes {
		r, ok := cfg.RateLimit.Rules[scope]
		if !ok {
			r = defaultFormRule
		}
		prefix := "RATE_" + strings.ToUpper(scope)
		e.integer(prefix+"_MAX", &r.MaxRequests)
		e.duration(prefix+"_WINDOW", &r.Window)
		cfg.RateLimit.Rules[scope] = r
	}

	e.str("REDIS_ADDR", &cfg.Redis.Addr)
	e.str("REDIS_PASSWORD", &cfg.Redis.Password)
	e.integer("REDIS_DB", &cfg.Redis.DB)
	e.str("REDIS_PREFIX", &cfg.Redis.Prefix)

	e.boolean("RATE_STATS_REDIS", &cfg.Stats.Redis)
	e.boolean("RATE_STATS_PROMETHEUS", &cfg.Stats.Prometheus)
	e.str("RATE_STATS_PREFIX", &cfg.Stats.Prefix)
	e.duration("RATE_STATS_TTL", &cfg.Stats.TTL)
	e.str("RATE_STATS_BUCKET", &cfg.Stats.Bucket)
	e.boolean("RATE_STATS_TRACK_KEYS", &cfg.Stats.TrackKeys)

	e.str("SMTP_HOST", &cfg.Mail.SMTPHost)
	e.integer("SMTP_PORT", &cfg.Mail.SMTPPort)
	e.str("SMTP_USERNAME", &cfg.Mail.Username)
	e.str("SMTP_PASSWORD", &cfg.Mail.Password)
	e.str("MAIL_FROM", &cfg.Mail.From)
	e.list("MAIL_TO", &cfg.Mail.To)
	e.float("MAIL_SENDS_PER_SECOND", &cfg.Mail.SendsPerSecond)
	e.integer("MAIL_BURST", &cfg.Mail.Burst)

	e.str("TELEGRAM_BOT_TOKEN", &cfg.Telegram.Token)
	e.int64List("TELEGRAM_CHAT_IDS", &cfg.Telegram.ChatIDs)

	e.integer("CONCURRENCY_MAX", &cfg.Concurrency.Max)
	e.duration("CONCURRENCY_TIMEOUT", &cfg.Concurrency.AcquireTimeout)

	e.int64("NODE_ID", &cfg.NodeID)

	return errors.Join(e.errs...)
}

func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		return errors.New("listen addr required")
	}
	if c.Server.UpstreamURL != "" {
		u, err := url.Parse(c.Server.UpstreamURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid upstream url: %q", c.Server.UpstreamURL)
		}
	}

	storage := strings.ToLower(strings.TrimSpace(c.RateLimit.Storage))
	switch storage {
	case "memory", "redis":
		c.RateLimit.Storage = storage
	default:
		return fmt.Errorf("invalid ratelimit storage: %s", c.RateLimit.Storage)
	}
	if c.RateLimit.MaxKeys < 0 {
		return errors.New("ratelimit max keys must be >= 0")
	}
	if c.RateLimit.CleanupEvery < 0 {
		return errors.New("ratelimit cleanup interval must be >= 0")
	}
	for _, scope := range FormScopes {
		rule := c.RateLimit.Rules[scope]
		if err := rule.Quota().Validate(); err != nil {
			return fmt.Errorf("ratelimit rule %s: %w", scope, err)
		}
		// a limpeza não pode zerar uma cota ainda ativa
		if storage == "memory" && c.RateLimit.Retention < rule.Window {
			return fmt.Errorf("ratelimit retention %s must be >= %s window %s", c.RateLimit.Retention, scope, rule.Window)
		}
	}

	if (storage == "redis" || c.Stats.Redis) && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("redis addr required when redis storage or redis stats are enabled")
	}

	if c.Mail.SMTPHost != "" {
		if c.Mail.From == "" || len(c.Mail.To) == 0 {
			return errors.New("mail from and to required when smtp host is set")
		}
	}
	if c.Mail.SendsPerSecond <= 0 {
		return errors.New("mail sends per second must be > 0")
	}
	if c.Telegram.Token != "" && len(c.Telegram.ChatIDs) == 0 {
		return errors.New("telegram chat ids required when bot token is set")
	}
	if c.Concurrency.Max < 0 {
		return errors.New("concurrency max must be >= 0")
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("node id must be within 0..1023, got %d", c.NodeID)
	}
	return nil
}

// envReader aplica variáveis de ambiente não vazias e acumula erros de parse.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(k string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(k))
	return v, v != ""
}

func (e *envReader) fail(k, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s=%q: %w", k, v, err))
}

func (e *envReader) str(k string, dst *string) {
	if v, ok := e.lookup(k); ok {
		*dst = v
	}
}

func (e *envReader) boolean(k string, dst *bool) {
	if v, ok := e.lookup(k); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(k, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) integer(k string, dst *int) {
	if v, ok := e.lookup(k); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(k, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) int64(k string, dst *int64) {
	if v, ok := e.lookup(k); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(k, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) float(k string, dst *float64) {
	if v, ok := e.lookup(k); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(k, v, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) duration(k string, dst *time.Duration) {
	if v, ok := e.lookup(k); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(k, v, err)
			return
		}
		*dst = d
	}
}

func (e *envReader) list(k string, dst *[]string) {
	if v, ok := e.lookup(k); ok {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
		*dst = out
	}
}

func (e *envReader) int64List(k string, dst *[]int64) {
	var items []string
	e.list(k, &items)
	if items == nil {
		return
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		n, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			e.fail(k, item, err)
			return
		}
		out = append(out, n)
	}
	*dst = out
}
