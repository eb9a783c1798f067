package kadmin

import (
	"log/slog"

	"github.com/kadmin/kadmin/internal/rate"
	"github.com/kadmin/kadmin/internal/stores"
	"github.com/kadmin/kadmin/jwt"
	"github.com/kadmin/kadmin/password"
	"github.com/redis/go-redis/v9"
)

// Engine is the admin auth core. It owns the token service, the SMS
// verification flow, the refresh protocol, and the user read models. An
// Engine is configured once and safe for concurrent use afterwards.
type Engine struct {
	config      Config
	users       UserProvider
	hasher      *password.Hasher
	tokens      *jwt.Manager
	refreshes   *stores.RefreshStore
	smsCodes    *stores.SMSStore
	limiter     *rate.Limiter
	metrics     *Metrics
	logger      *slog.Logger
	passwordCfg *password.Config
}

// Option customizes an Engine at construction time.
type Option func(*Engine)

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics attaches a counter set. Without it metric writes are no-ops.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPasswordConfig overrides the argon2id cost parameters.
func WithPasswordConfig(cfg password.Config) Option {
	return func(e *Engine) { e.passwordCfg = &cfg }
}

// New wires an Engine from its config, the credential store, and a Redis
// client shared by the refresh, SMS, and rate-limit keyspaces.
func New(cfg Config, users UserProvider, redisClient redis.UniversalClient, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if users == nil || redisClient == nil {
		return nil, ErrEngineNotReady
	}

	e := &Engine{
		config: cfg,
		users:  users,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	pwCfg := password.DefaultConfig()
	if e.passwordCfg != nil {
		pwCfg = *e.passwordCfg
	}
	hasher, err := password.NewHasher(pwCfg)
	if err != nil {
		return nil, err
	}
	e.hasher = hasher

	tokens, err := jwt.NewManager(jwt.Config{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	})
	if err != nil {
		return nil, err
	}
	e.tokens = tokens

	e.refreshes = stores.NewRefreshStore(redisClient)
	e.smsCodes = stores.NewSMSStore(redisClient)
	e.limiter = rate.New(redisClient, rate.Config{
		IPDailyCap:      cfg.RateLimit.IPDailyCap,
		PhoneDailyCap:   cfg.RateLimit.PhoneDailyCap,
		MinSendInterval: cfg.RateLimit.MinSendInterval,
		Window:          cfg.RateLimit.Window,
	})

	return e, nil
}

// Tokens exposes the token service so the HTTP layer can verify access
// tokens without going through the engine.
func (e *Engine) Tokens() *jwt.Manager {
	return e.tokens
}

// Config returns the engine's immutable configuration.
func (e *Engine) Config() Config {
	return e.config
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() map[MetricID]uint64 {
	if e == nil {
		return map[MetricID]uint64{}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}
