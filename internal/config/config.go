// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the resolved runtime configuration for the service.
type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// TrustedProxyCIDRs lists the reverse proxies whose forwarding headers
	// name the client. Bare addresses are accepted. Empty means the peer
	// address is always the client.
	TrustedProxyCIDRs []string       `env:"TRUSTED_PROXY_CIDRS" envSeparator:","`
	TrustedProxies    []netip.Prefix `env:"-"`

	DB DBConfig

	// RedisURL is the rate-limit counter store. Empty disables rate
	// limiting (every request is allowed).
	RedisURL          string        `env:"RATE_LIMIT_REDIS_URL"`
	RSVPRateLimit     int           `env:"RSVP_RATE_LIMIT" envDefault:"5"`
	RSVPRateWindow    time.Duration `env:"RSVP_RATE_WINDOW" envDefault:"1m"`
	CommentRateLimit  int           `env:"COMMENT_RATE_LIMIT" envDefault:"10"`
	CommentRateWindow time.Duration `env:"COMMENT_RATE_WINDOW" envDefault:"1m"`

	// TurnstileSecret enables bot verification when set.
	TurnstileSecret    string        `env:"TURNSTILE_SECRET_KEY"`
	TurnstileVerifyURL string        `env:"TURNSTILE_VERIFY_URL" envDefault:"https://challenges.cloudflare.com/turnstile/v0/siteverify"`
	TurnstileTimeout   time.Duration `env:"TURNSTILE_TIMEOUT" envDefault:"5s"`

	JWTSecret  string `env:"AUTH_JWT_SECRET"`
	AdminToken string `env:"ADMIN_TOKEN"`

	// NATSURL enables domain event publishing when set.
	NATSURL string `env:"NATS_URL"`

	BaseTier              string        `env:"BASE_PACKAGE_TIER" envDefault:"basic"`
	SagaCompletionTimeout time.Duration `env:"SAGA_COMPLETION_TIMEOUT" envDefault:"15s"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"invitations"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"20"`
}

// DSN returns DATABASE_URL when set, otherwise a libpq-compatible
// connection string built from the discrete fields.
func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	return load(env.Options{})
}

// Defaults returns the configuration an empty environment resolves to.
func Defaults() (Config, error) {
	return load(env.Options{Environment: map[string]string{}})
}

func load(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	proxies, err := parseProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return Config{}, err
	}
	cfg.TrustedProxies = proxies
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseProxies(raw []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXY_CIDRS: %w", err)
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXY_CIDRS: %w", err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

func (c Config) validate() error {
	if c.RSVPRateLimit <= 0 || c.CommentRateLimit <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.RSVPRateWindow <= 0 || c.CommentRateWindow <= 0 {
		return fmt.Errorf("rate windows must be positive")
	}
	if c.TurnstileTimeout <= 0 {
		return fmt.Errorf("TURNSTILE_TIMEOUT must be positive")
	}
	if c.BaseTier == "" {
		return fmt.Errorf("BASE_PACKAGE_TIER is required")
	}
	return nil
}
