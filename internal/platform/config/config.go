package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
)

// EnvDevelopment enables dev defaults and exposes internal error detail.
const EnvDevelopment = "development"

// DevSigningKey is only accepted when ENVIRONMENT=development.
const DevSigningKey = "dev-secret-key-change-in-production"

// Config is the full server configuration, read from environment variables.
type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	// TrustForwardedFor honours X-Forwarded-For for client IPs. Only enable
	// behind a proxy that overwrites the header.
	TrustForwardedFor bool   `env:"TRUST_FORWARDED_FOR" envDefault:"false"`
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"*"`
	MaxBodyBytes      int64  `env:"MAX_BODY_BYTES" envDefault:"65536"`

	Session   Session
	PIN       PIN
	RateLimit RateLimit

	DatabaseURL string `env:"DATABASE_URL"`
	Redis       Redis
	Kafka       Kafka

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

type Session struct {
	SigningKey string        `env:"SESSION_SIGNING_KEY"`
	Issuer     string        `env:"SESSION_ISSUER" envDefault:"tripkey"`
	TTL        time.Duration `env:"SESSION_TTL" envDefault:"720h"`
}

type PIN struct {
	// HashCost is the bcrypt cost; 0 selects bcrypt.DefaultCost.
	HashCost int `env:"PIN_HASH_COST" envDefault:"0"`
}

type RateLimit struct {
	Max     int           `env:"RATE_LIMIT_MAX" envDefault:"100"`
	Window  time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	JoinMax int           `env:"JOIN_RATE_LIMIT_MAX" envDefault:"10"`
}

// Redis configures the shared rate-limit counter store.
type Redis struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

type Kafka struct {
	Brokers           []string      `env:"KAFKA_BROKERS" envSeparator:","`
	NotificationTopic string        `env:"KAFKA_NOTIFICATION_TOPIC" envDefault:"tripkey.member-events"`
	Acks              string        `env:"KAFKA_ACKS" envDefault:"all"`
	Retries           int           `env:"KAFKA_RETRIES" envDefault:"3"`
	DeliveryTimeout   time.Duration `env:"KAFKA_DELIVERY_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment and applies environment-dependent defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

func (c *Config) finalize() error {
	if c.Session.SigningKey == "" {
		if !c.IsDevelopment() {
			return errors.New("SESSION_SIGNING_KEY is required outside development")
		}
		c.Session.SigningKey = DevSigningKey
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.JoinMax <= 0 {
		return errors.New("rate limit maximums must be positive")
	}
	if c.RateLimit.Window < time.Second {
		return errors.New("RATE_LIMIT_WINDOW must be at least 1s")
	}
	if c.Session.TTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	// Zero selects bcrypt.DefaultCost.
	if c.PIN.HashCost != 0 && (c.PIN.HashCost < bcrypt.MinCost || c.PIN.HashCost > bcrypt.MaxCost) {
		return fmt.Errorf("PIN_HASH_COST must be 0 or between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}
