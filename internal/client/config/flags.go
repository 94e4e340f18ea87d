package config

import (
	"os"

	"github.com/spf13/pflag"
)

// Flag names shared with the CLI.
const (
	FlagConfig     = "config"
	FlagServer     = "server"
	FlagAPIPrefix  = "api-prefix"
	FlagTimeout    = "timeout"
	FlagTokenStore = "token-store"
	FlagDatabase   = "db"
	FlagRedisAddr  = "redis-addr"
	FlagLogLevel   = "log-level"
	FlagLogFormat  = "log-format"
)

// BindFlags registers the configuration flags on fs. Defaults shown in help
// come from LoadDefaults; only flags the user sets override other sources.
func BindFlags(fs *pflag.FlagSet) {
	var d Config
	d.LoadDefaults()

	fs.StringP(FlagConfig, "c", "", "path to a JSON or YAML config file")
	fs.StringP(FlagServer, "a", d.ServerURL, "base URL of the admin API")
	fs.String(FlagAPIPrefix, d.APIPrefix, "path prefix of the user endpoints")
	fs.Duration(FlagTimeout, d.RequestTimeout, "per-request timeout")
	fs.String(FlagTokenStore, d.TokenStore, "token store: sqlite, memory or redis")
	fs.String(FlagDatabase, d.DatabaseDSN, "sqlite database for the token store")
	fs.String(FlagRedisAddr, d.RedisAddr, "redis address for the token store")
	fs.String(FlagLogLevel, d.LogLevel, "log level: debug, info, warn, error")
	fs.String(FlagLogFormat, d.LogFormat, "log format: text or json")
}

// ApplyFlags copies explicitly set flags into c. Flags missing from fs are
// skipped.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	strs := map[string]*string{
		FlagServer:     &c.ServerURL,
		FlagAPIPrefix:  &c.APIPrefix,
		FlagTokenStore: &c.TokenStore,
		FlagDatabase:   &c.DatabaseDSN,
		FlagRedisAddr:  &c.RedisAddr,
		FlagLogLevel:   &c.LogLevel,
		FlagLogFormat:  &c.LogFormat,
	}
	for name, dst := range strs {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if fs.Lookup(FlagTimeout) != nil && fs.Changed(FlagTimeout) {
		v, err := fs.GetDuration(FlagTimeout)
		if err != nil {
			return err
		}
		c.RequestTimeout = v
	}
	return nil
}

// configPath resolves the config file from --config, then GOPHADMIN_CONFIG.
func configPath(fs *pflag.FlagSet) string {
	if fs != nil && fs.Lookup(FlagConfig) != nil {
		if v, err := fs.GetString(FlagConfig); err == nil && v != "" {
			return v
		}
	}
	return os.Getenv(EnvPrefix + "CONFIG")
}
