// Package config loads service settings from the environment (and a .env
// file in development).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type MTN struct {
	BaseURL         string
	SubscriptionKey string
	APIUser         string
	APIKey          string
	TargetEnv       string
	CallbackSecret  string
}

func (c MTN) Enabled() bool { return c.SubscriptionKey != "" && c.APIUser != "" && c.APIKey != "" }

type Orange struct {
	BaseURL        string
	ClientID       string
	ClientSecret   string
	MerchantKey    string
	Country        string
	CallbackSecret string
}

func (c Orange) Enabled() bool { return c.ClientID != "" && c.ClientSecret != "" && c.MerchantKey != "" }

type Wave struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
}

func (c Wave) Enabled() bool { return c.APIKey != "" }

type Stripe struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
}

func (c Stripe) Enabled() bool { return c.SecretKey != "" }

type Config struct {
	Port          string
	DBDSN         string
	LogLevel      slog.Level
	PublicBaseURL string

	ProviderTimeout    time.Duration
	ProviderRPS        float64
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	ArchiveDriver   string
	ArchiveLocalDir string
	S3Region        string
	S3Bucket        string
	S3Prefix        string

	MTN    MTN
	Orange Orange
	Wave   Wave
	Stripe Stripe
}

// Load reads .env (ignored if missing - prod uses real env vars) and then the
// process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function so tests need not touch
// the process environment.
func FromEnv(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}
	providerTimeout := p.duration("PROVIDER_TIMEOUT", 30*time.Second)

	cfg := Config{
		Port:          p.str("PORT", "8080"),
		DBDSN:         p.str("DB_DSN", ""),
		LogLevel:      p.level("LOG_LEVEL", slog.LevelInfo),
		PublicBaseURL: strings.TrimRight(p.str("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		ProviderTimeout:    providerTimeout,
		ProviderRPS:        p.number("PROVIDER_RPS", 10),
		BreakerMaxFailures: uint32(p.integer("BREAKER_MAX_FAILURES", 5)),
		BreakerOpenTimeout: p.duration("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		RedisAddr:     p.str("REDIS_ADDR", ""),
		RedisPassword: p.str("REDIS_PASSWORD", ""),
		RedisDB:       p.integer("REDIS_DB", 0),
		LockTTL:       p.duration("LOCK_TTL", minLockTTL(providerTimeout)+15*time.Second),

		ArchiveDriver:   p.str("ARCHIVE_DRIVER", "none"),
		ArchiveLocalDir: p.str("ARCHIVE_LOCAL_DIR", "./storage/webhooks"),
		S3Region:        p.str("S3_REGION", ""),
		S3Bucket:        p.str("S3_BUCKET", ""),
		S3Prefix:        p.str("S3_PREFIX", "webhooks"),

		MTN: MTN{
			BaseURL:         p.str("MTN_BASE_URL", "https://sandbox.momodeveloper.mtn.com"),
			SubscriptionKey: p.str("MTN_SUBSCRIPTION_KEY", ""),
			APIUser:         p.str("MTN_API_USER", ""),
			APIKey:          p.str("MTN_API_KEY", ""),
			TargetEnv:       p.str("MTN_TARGET_ENV", "sandbox"),
			CallbackSecret:  p.str("MTN_CALLBACK_SECRET", ""),
		},
		Orange: Orange{
			BaseURL:        p.str("ORANGE_BASE_URL", "https://api.orange.com"),
			ClientID:       p.str("ORANGE_CLIENT_ID", ""),
			ClientSecret:   p.str("ORANGE_CLIENT_SECRET", ""),
			MerchantKey:    p.str("ORANGE_MERCHANT_KEY", ""),
			Country:        p.str("ORANGE_COUNTRY", "ci"),
			CallbackSecret: p.str("ORANGE_CALLBACK_SECRET", ""),
		},
		Wave: Wave{
			BaseURL:       p.str("WAVE_BASE_URL", "https://api.wave.com"),
			APIKey:        p.str("WAVE_API_KEY", ""),
			WebhookSecret: p.str("WAVE_WEBHOOK_SECRET", ""),
		},
		Stripe: Stripe{
			BaseURL:       p.str("STRIPE_BASE_URL", "https://api.stripe.com"),
			SecretKey:     p.str("STRIPE_SECRET_KEY", ""),
			WebhookSecret: p.str("STRIPE_WEBHOOK_SECRET", ""),
		},
	}

	if cfg.DBDSN == "" {
		p.errs = append(p.errs, errors.New("DB_DSN environment variable is required"))
	}
	if cfg.ProviderTimeout <= 0 {
		p.errs = append(p.errs, errors.New("PROVIDER_TIMEOUT must be positive"))
	}
	if cfg.ProviderTimeout > 0 && cfg.LockTTL <= minLockTTL(cfg.ProviderTimeout) {
		p.errs = append(p.errs, fmt.Errorf("LOCK_TTL (%s) must exceed %s: a token fetch and a provider call both run under the lock", cfg.LockTTL, minLockTTL(cfg.ProviderTimeout)))
	}
	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}
	return cfg, nil
}

// minLockTTL is the longest a payment lock can be held: OAuth adapters fetch
// a token and then make the call, each bounded by the provider timeout.
func minLockTTL(providerTimeout time.Duration) time.Duration {
	return 2 * providerTimeout
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(k, def string) string {
	if v := strings.TrimSpace(p.getenv(k)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(k string, def int) int {
	v := p.str(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", k, v))
		return def
	}
	return n
}

func (p *parser) number(k string, def float64) float64 {
	v := p.str(k, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid number %q", k, v))
		return def
	}
	return f
}

func (p *parser) duration(k string, def time.Duration) time.Duration {
	v := p.str(k, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", k, v))
		return def
	}
	return d
}

func (p *parser) level(k string, def slog.Level) slog.Level {
	v := p.str(k, "")
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid level %q", k, v))
		return def
	}
	return l
}
