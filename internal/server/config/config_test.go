package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":8080", c.Address)
	assert.Equal(t, "/api/v1", c.APIPrefix)
	assert.Equal(t, StoreMemory, c.Store)
	assert.Equal(t, "secretKey", c.SecretKey)
	assert.Equal(t, 5*time.Minute, c.PreAuthTokenValidityDuration)
	assert.Equal(t, 15*time.Minute, c.AccessTokenValidityDuration)
	assert.Equal(t, 24*time.Hour, c.RefreshTokenValidityDuration)
	assert.Equal(t, 30*time.Second, c.ResendInterval)
	assert.Equal(t, 5, c.MaxCodeAttempts)
	require.NoError(t, c.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `{
		"address": ":9090",
		"store": "postgres",
		"access_token_validity_duration": "2m",
		"resend_interval": 1000000000,
		"max_code_attempts": 3
	}`)

	var c Config
	c.LoadDefaults()
	require.NoError(t, c.LoadFile(path))

	assert.Equal(t, ":9090", c.Address)
	assert.Equal(t, StorePostgres, c.Store)
	assert.Equal(t, 2*time.Minute, c.AccessTokenValidityDuration)
	assert.Equal(t, time.Second, c.ResendInterval)
	assert.Equal(t, 3, c.MaxCodeAttempts)
	assert.Equal(t, 24*time.Hour, c.RefreshTokenValidityDuration, "unset keys keep defaults")
}

func TestLoadFile_Errors(t *testing.T) {
	var c Config
	require.Error(t, c.LoadFile(filepath.Join(t.TempDir(), "missing.json")))
	require.Error(t, c.LoadFile(writeConfig(t, `{"address":`)))
	require.Error(t, c.LoadFile(writeConfig(t, `{"resend_interval":"soon"}`)))
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `{"address":":7000","secret_key":"from-file","log_level":"debug"}`)
	t.Setenv(EnvPrefix+"CONFIG", path)
	t.Setenv(EnvPrefix+"SECRET_KEY", "from-env")
	t.Setenv(EnvPrefix+"ACCESS_TTL", "1m")

	c, err := Load([]string{"--address", ":7100", "-r", "2h"})
	require.NoError(t, err)

	assert.Equal(t, ":7100", c.Address, "flag beats file")
	assert.Equal(t, "from-env", c.SecretKey, "env beats file")
	assert.Equal(t, "debug", c.LogLevel, "file beats default")
	assert.Equal(t, time.Minute, c.AccessTokenValidityDuration)
	assert.Equal(t, 2*time.Hour, c.RefreshTokenValidityDuration)
	assert.Equal(t, "/api/v1", c.APIPrefix)
}

func TestLoad_ConfigFlagBeatsEnv(t *testing.T) {
	envPath := writeConfig(t, `{"address":":1111"}`)
	flagPath := writeConfig(t, `{"address":":2222"}`)
	t.Setenv(EnvPrefix+"CONFIG", envPath)

	c, err := Load([]string{"-c", flagPath})
	require.NoError(t, err)
	assert.Equal(t, ":2222", c.Address)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("unknown flag", func(t *testing.T) {
		_, err := Load([]string{"--bogus"})
		require.Error(t, err)
	})
	t.Run("bad env", func(t *testing.T) {
		t.Setenv(EnvPrefix+"MAX_CODE_ATTEMPTS", "many")
		_, err := Load(nil)
		require.Error(t, err)
	})
	t.Run("invalid result", func(t *testing.T) {
		_, err := Load([]string{"--store", "mongo"})
		require.ErrorContains(t, err, `unknown store "mongo"`)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty address", func(c *Config) { c.Address = "" }, "listen address is required"},
		{"postgres without dsn", func(c *Config) { c.Store = StorePostgres; c.DatabaseDSN = "" }, "database dsn is required"},
		{"empty secret", func(c *Config) { c.SecretKey = "" }, "secret key is required"},
		{"bcrypt cost", func(c *Config) { c.BcryptCost = 1 }, "bcrypt cost"},
		{"zero access ttl", func(c *Config) { c.AccessTokenValidityDuration = 0 }, "access ttl must be positive"},
		{"sub-second pre-auth ttl", func(c *Config) { c.PreAuthTokenValidityDuration = time.Millisecond }, "at least one second"},
		{"attempts", func(c *Config) { c.MaxCodeAttempts = 0 }, "max code attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)
			require.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}
