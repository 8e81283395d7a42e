package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	ParserLenient = "lenient"
	ParserStrict  = "strict"
)

type Config struct {
	Port           int    `env:"PORT"            envDefault:"8080"`
	DBPath         string `env:"DB_PATH"         envDefault:"data/agora.db"`
	ProductionMode bool   `env:"PRODUCTION"`

	FeedParser   string        `env:"FEED_PARSER"    envDefault:"lenient"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT"  envDefault:"30s"`
	MaxFeedBytes int64         `env:"MAX_FEED_BYTES" envDefault:"5242880"`

	AdminEmails []string      `env:"ADMIN_EMAILS"  envSeparator:","`
	SessionTTL  time.Duration `env:"SESSION_TTL"   envDefault:"168h"`

	SiteTitle string `env:"SITE_TITLE" envDefault:"Agora"`
	SiteURL   string `env:"SITE_URL"   envDefault:"http://localhost:8080"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`
}

// Load reads the AGORA_* environment.
func Load() (Config, error) {
	return parse(env.Options{Prefix: "AGORA_"})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.FeedParser {
	case ParserLenient, ParserStrict:
	default:
		return fmt.Errorf("invalid feed parser %q (want %q or %q)", c.FeedParser, ParserLenient, ParserStrict)
	}
	if c.MaxFeedBytes <= 0 {
		return fmt.Errorf("max feed bytes must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	return nil
}

func (c Config) GetAddress() string {
	return fmt.Sprintf(":%d", c.Port)
}
