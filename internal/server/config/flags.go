package config

import (
	"os"
	"time"

	"github.com/spf13/pflag"
)

const (
	FlagConfig     = "config"
	FlagAddress    = "address"
	FlagAPIPrefix  = "api-prefix"
	FlagStore      = "store"
	FlagDatabase   = "database-dsn"
	FlagUsersFile  = "users-file"
	FlagSecretKey  = "secret-key"
	FlagAccessTTL  = "access-ttl"
	FlagRefreshTTL = "refresh-ttl"
	FlagResend     = "resend-interval"
	FlagLogLevel   = "log-level"
	FlagLogFormat  = "log-format"
)

func newFlagSet() *pflag.FlagSet {
	var d Config
	d.LoadDefaults()

	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	fs.StringP(FlagConfig, "c", "", "path to a JSON config file")
	fs.StringP(FlagAddress, "a", d.Address, "address and port to listen on")
	fs.String(FlagAPIPrefix, d.APIPrefix, "path prefix of the user endpoints")
	fs.String(FlagStore, d.Store, "storage backend: memory or postgres")
	fs.StringP(FlagDatabase, "d", d.DatabaseDSN, "postgres DSN")
	fs.StringP(FlagUsersFile, "u", d.UsersFile, "YAML file with users to seed")
	fs.StringP(FlagSecretKey, "s", d.SecretKey, "HMAC key for signed tokens")
	fs.DurationP(FlagAccessTTL, "t", d.AccessTokenValidityDuration, "access token validity")
	fs.DurationP(FlagRefreshTTL, "r", d.RefreshTokenValidityDuration, "refresh token validity")
	fs.Duration(FlagResend, d.ResendInterval, "minimum interval between code resends")
	fs.String(FlagLogLevel, d.LogLevel, "log level: debug, info, warn, error")
	fs.String(FlagLogFormat, d.LogFormat, "log format: text or json")
	return fs
}

// ApplyFlags copies explicitly set flags into c.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	strs := map[string]*string{
		FlagAddress:   &c.Address,
		FlagAPIPrefix: &c.APIPrefix,
		FlagStore:     &c.Store,
		FlagDatabase:  &c.DatabaseDSN,
		FlagUsersFile: &c.UsersFile,
		FlagSecretKey: &c.SecretKey,
		FlagLogLevel:  &c.LogLevel,
		FlagLogFormat: &c.LogFormat,
	}
	for name, dst := range strs {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	durs := map[string]*time.Duration{
		FlagAccessTTL:  &c.AccessTokenValidityDuration,
		FlagRefreshTTL: &c.RefreshTokenValidityDuration,
		FlagResend:     &c.ResendInterval,
	}
	for name, dst := range durs {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}

func configPath(fs *pflag.FlagSet) string {
	if v, err := fs.GetString(FlagConfig); err == nil && v != "" {
		return v
	}
	return os.Getenv(EnvPrefix + "CONFIG")
}
