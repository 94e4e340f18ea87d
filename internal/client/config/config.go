package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/spf13/pflag"
)

// Token store media.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds runtime settings for the CLI.
type Config struct {
	ServerURL      string        `env:"SERVER_URL"`
	APIPrefix      string        `env:"API_PREFIX"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`

	TokenStore  string `env:"TOKEN_STORE"`
	DatabaseDSN string `env:"DATABASE_DSN"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	// SealPassphrase, when set, encrypts tokens at rest.
	SealPassphrase string `env:"SEAL_PASSPHRASE"`
	SealSalt       string `env:"SEAL_SALT"`

	ResendWindow time.Duration `env:"RESEND_WINDOW"`

	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.APIPrefix = "/api/v1"
	c.RequestTimeout = 15 * time.Second
	c.TokenStore = StoreSQLite
	c.DatabaseDSN = "gophadmin.db"
	c.RedisAddr = "127.0.0.1:6379"
	c.SealSalt = "gophadmin-token-store"
	c.ResendWindow = 30 * time.Second
	c.LogLevel = "warn"
	c.LogFormat = "text"
}

// Load builds a Config from every source in precedence order. fs must carry
// the flags registered by BindFlags and be parsed already.
func Load(fs *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if path := configPath(fs); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.ApplyFlags(fs); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the CLI cannot start with.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("server url %q must be an absolute http(s) url", c.ServerURL))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if !slices.Contains([]string{StoreSQLite, StoreMemory, StoreRedis}, c.TokenStore) {
		errs = append(errs, fmt.Errorf("unknown token store %q", c.TokenStore))
	}
	if c.TokenStore == StoreSQLite && c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database dsn is required for the sqlite token store"))
	}
	if c.TokenStore == StoreRedis && c.RedisAddr == "" {
		errs = append(errs, errors.New("redis address is required for the redis token store"))
	}
	if c.SealPassphrase != "" && c.SealSalt == "" {
		errs = append(errs, errors.New("seal salt is required with a seal passphrase"))
	}
	if c.ResendWindow <= 0 {
		errs = append(errs, errors.New("resend window must be positive"))
	}
	return errors.Join(errs...)
}
