package kadmin

import (
	"errors"
	"time"
)

// Config carries every tunable of the engine. Instances are configured
// during initialization and treated as immutable afterwards.
type Config struct {
	JWT       JWTConfig
	SMS       SMSConfig
	RateLimit RateLimitConfig
	Turnstile TurnstileConfig
}

// JWTConfig configures the token service. The access lifetime must stay
// strictly shorter than the refresh lifetime.
type JWTConfig struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// SMSConfig configures verification-code issuance.
//
// EchoCode returns the generated code in the send response. It exists for
// development against a fake SMS gateway and must be off in production.
type SMSConfig struct {
	CodeTTL  time.Duration
	EchoCode bool
}

// RateLimitConfig configures SMS send throttling. Counters live in Redis
// with a sliding daily window.
type RateLimitConfig struct {
	IPDailyCap      int
	PhoneDailyCap   int
	MinSendInterval time.Duration
	Window          time.Duration
}

// TurnstileConfig configures the human-check guard.
//
// VerifyURL is overridable so tests can point it at a stub server.
// AllowDevBypass honors the `k-mode: dev` request header; it is an
// explicit policy switch, never enabled implicitly.
type TurnstileConfig struct {
	SecretKey      string
	VerifyURL      string
	AllowDevBypass bool
}

// DefaultConfig returns the production constants: 60s access tokens,
// 7-day refresh records, 5-minute SMS codes, 10/day per IP, 4/day per
// phone, 60s minimum send interval.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:     "kadmin",
			Audience:   "kadmin-web",
			AccessTTL:  60 * time.Second,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		SMS: SMSConfig{
			CodeTTL: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			IPDailyCap:      10,
			PhoneDailyCap:   4,
			MinSendInterval: 60 * time.Second,
			Window:          24 * time.Hour,
		},
		Turnstile: TurnstileConfig{
			VerifyURL: "https://challenges.cloudflare.com/turnstile/v0/siteverify",
		},
	}
}

// Validate rejects configurations that would break the refresh protocol.
func (c Config) Validate() error {
	if len(c.JWT.Secret) == 0 {
		return errors.New("jwt secret is required")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("access lifetime must be shorter than refresh lifetime")
	}
	if c.SMS.CodeTTL <= 0 {
		return errors.New("sms code lifetime must be positive")
	}
	if c.RateLimit.IPDailyCap <= 0 || c.RateLimit.PhoneDailyCap <= 0 {
		return errors.New("rate limit caps must be positive")
	}
	if c.RateLimit.MinSendInterval < 0 || c.RateLimit.Window <= 0 {
		return errors.New("invalid rate limit window configuration")
	}
	return nil
}
