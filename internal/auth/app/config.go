package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
)

// Session and revocation backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	Env                  string        `env:"ENV" envDefault:"dev"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat            string        `env:"LOG_FORMAT" envDefault:"json"`
	Port                 int           `env:"PORT" envDefault:"8080"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`

	DatabaseFile string `env:"AUTH_DATABASE_FILE" envDefault:"auth.db"`
	PepperFile   string `env:"AUTH_PEPPER_FILE" envDefault:"pepper"`

	Issuer             string   `env:"AUTH_ISSUER" envDefault:"tabauth"`
	AccessTokenSecret  string   `env:"AUTH_ACCESS_TOKEN_SECRET,unset"`
	RefreshTokenSecret string   `env:"AUTH_REFRESH_TOKEN_SECRET,unset"`
	AccessTokenTTL     jwtx.TTL `env:"AUTH_ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL    jwtx.TTL `env:"AUTH_REFRESH_TOKEN_TTL" envDefault:"7d"`
	SessionTTL         jwtx.TTL `env:"AUTH_SESSION_TTL" envDefault:"7d"`
	CookieSecure       bool     `env:"AUTH_COOKIE_SECURE"`
	DefaultRole        string   `env:"AUTH_DEFAULT_ROLE" envDefault:"user"`

	TOTPIssuer string `env:"AUTH_TOTP_ISSUER" envDefault:"TabAuth"`
	TOTPWindow uint   `env:"AUTH_TOTP_WINDOW" envDefault:"2"`

	SessionBackend    string `env:"AUTH_SESSION_BACKEND" envDefault:"memory"`
	RevocationBackend string `env:"AUTH_REVOCATION_BACKEND" envDefault:"sqlite"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD,unset"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// ProviderVerification checks OAuth access tokens against the provider's
	// userinfo endpoint before trusting a provider login.
	ProviderVerification bool `env:"AUTH_PROVIDER_VERIFICATION" envDefault:"true"`
}

// LoadConfig reads the environment. Secure cookies are forced on in prod.
// Required keys are checked by Validate, so commands that only touch the
// database can run without token secrets.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Env == "prod" {
		cfg.CookieSecure = true
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run safely with.
func (c Config) Validate() error {
	var errs []error

	if c.AccessTokenSecret == "" || c.RefreshTokenSecret == "" {
		errs = append(errs, errors.New("AUTH_ACCESS_TOKEN_SECRET and AUTH_REFRESH_TOKEN_SECRET are required"))
	} else if c.AccessTokenSecret == c.RefreshTokenSecret {
		errs = append(errs, errors.New("access and refresh token secrets must differ"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.SessionTTL <= 0 {
		errs = append(errs, errors.New("token and session TTLs must be positive"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT %d", c.Port))
	}

	switch c.SessionBackend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("AUTH_SESSION_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.SessionBackend))
	}
	switch c.RevocationBackend {
	case BackendSQLite, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("AUTH_REVOCATION_BACKEND must be %q or %q, got %q", BackendSQLite, BackendRedis, c.RevocationBackend))
	}

	return errors.Join(errs...)
}

func (c Config) usesRedis() bool {
	return c.SessionBackend == BackendRedis || c.RevocationBackend == BackendRedis
}
