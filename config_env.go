package kadmin

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadConfigFromEnv builds a [Config] from environment variables, after
// loading optional .env files. The variable names match the deployment
// the admin UI was built against.
//
//	JWT_ADMIN_SECRET                  signing secret (required)
//	JWT_ADMIN_ISSUER                  issuer claim
//	JWT_ADMIN_AUDIENCE                audience claim
//	TURNSTILE_SECRET_KEY_ADMIN_LOGIN  turnstile secret
//	KADMIN_MODE                       "dev" enables the turnstile bypass
//	                                  header and SMS code echo
//	ACCESS_TOKEN_TTL_SECONDS          override, default 60
//	REFRESH_TOKEN_TTL_SECONDS         override, default 604800
func LoadConfigFromEnv(dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) > 0 {
		// Missing .env files are fine; real env vars win either way.
		_ = godotenv.Load(dotenvFiles...)
	} else {
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte(os.Getenv("JWT_ADMIN_SECRET"))
	if v := os.Getenv("JWT_ADMIN_ISSUER"); v != "" {
		cfg.JWT.Issuer = v
	}
	if v := os.Getenv("JWT_ADMIN_AUDIENCE"); v != "" {
		cfg.JWT.Audience = v
	}
	if v := os.Getenv("ACCESS_TOKEN_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.JWT.AccessTTL = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("REFRESH_TOKEN_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.JWT.RefreshTTL = time.Duration(secs) * time.Second
		}
	}
	cfg.Turnstile.SecretKey = os.Getenv("TURNSTILE_SECRET_KEY_ADMIN_LOGIN")

	if os.Getenv("KADMIN_MODE") == "dev" {
		cfg.Turnstile.AllowDevBypass = true
		cfg.SMS.EchoCode = true
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
