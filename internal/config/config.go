// Package config loads wheel8 settings from the environment, command-line
// flags, and YAML wheel definition files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	AnchorClock    = "clock"
	AnchorSequence = "sequence"
)

// Config holds every runtime setting. Environment variables provide the
// defaults and flags override them.
type Config struct {
	Env      string `env:"WHEEL8_ENV" envDefault:"local"`
	LogLevel string `env:"WHEEL8_LOG_LEVEL"`

	HTTPAddr       string        `env:"WHEEL8_HTTP_ADDR" envDefault:":8080"`
	ReadTimeout    time.Duration `env:"WHEEL8_HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout   time.Duration `env:"WHEEL8_HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout    time.Duration `env:"WHEEL8_HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	RequestTimeout time.Duration `env:"WHEEL8_HTTP_REQUEST_TIMEOUT" envDefault:"10s"`
	CORSOrigins    []string      `env:"WHEEL8_CORS_ORIGINS" envDefault:"*" envSeparator:","`

	Store       string `env:"WHEEL8_STORE" envDefault:"sqlite"`
	SQLitePath  string `env:"WHEEL8_SQLITE_PATH" envDefault:"wheel8.db"`
	PostgresDSN string `env:"WHEEL8_PG_DSN"`

	JWTSecret string        `env:"WHEEL8_JWT_SECRET"`
	JWTIssuer string        `env:"WHEEL8_JWT_ISSUER" envDefault:"wheel8"`
	TokenTTL  time.Duration `env:"WHEEL8_TOKEN_TTL" envDefault:"24h"`

	Anchor        string `env:"WHEEL8_ANCHOR" envDefault:"clock"`
	SequenceStart uint64 `env:"WHEEL8_SEQUENCE_START" envDefault:"0"`

	WheelsFile string `env:"WHEEL8_WHEELS_FILE"`

	RedisAddr     string `env:"WHEEL8_REDIS_ADDR"`
	RedisPassword string `env:"WHEEL8_REDIS_PASSWORD"`
	RedisDB       int    `env:"WHEEL8_REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"WHEEL8_REDIS_PREFIX" envDefault:"wheel8:spins:"`

	AMQPURL      string `env:"WHEEL8_AMQP_URL"`
	AMQPExchange string `env:"WHEEL8_AMQP_EXCHANGE" envDefault:"wheel8.spins"`

	OTelEndpoint string `env:"WHEEL8_OTEL_ENDPOINT"`
}

// FromEnv loads Config from the environment only.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// ParseConfig parses environment and flags into Config and validates the result.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	if fs == nil {
		return Config{}, errors.New("flag parser is required")
	}
	cfg, err := FromEnv()
	if err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Env, "env", cfg.Env, "Environment: local, dev or prod")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level override")
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "Store driver: sqlite or postgres")
	fs.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "SQLite database path")
	fs.StringVar(&cfg.PostgresDSN, "pg-dsn", cfg.PostgresDSN, "PostgreSQL DSN")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HS256 secret for requester tokens")
	fs.StringVar(&cfg.Anchor, "anchor", cfg.Anchor, "Entropy anchor source: clock or sequence")
	fs.Uint64Var(&cfg.SequenceStart, "sequence-start", cfg.SequenceStart, "First value of the sequence anchor")
	fs.StringVar(&cfg.WheelsFile, "wheels", cfg.WheelsFile, "YAML file of wheels to initialize")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for spin notifications")
	fs.StringVar(&cfg.AMQPURL, "amqp", cfg.AMQPURL, "AMQP URL for spin notifications")
	fs.StringVar(&cfg.OTelEndpoint, "otel-endpoint", cfg.OTelEndpoint, "OTLP/HTTP trace endpoint")

	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that have a closed set of values.
func (c *Config) Validate() error {
	var errs []error

	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	switch c.Store {
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite path is required"))
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres DSN is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}

	c.Anchor = strings.ToLower(strings.TrimSpace(c.Anchor))
	if c.Anchor != AnchorClock && c.Anchor != AnchorSequence {
		errs = append(errs, fmt.Errorf("unknown anchor source %q", c.Anchor))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
