package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/gophadmin/internal/timex"
)

// jsonConfig is the JSON file DTO. Durations accept "1m" or integer
// nanoseconds; zero values leave the current setting alone.
type jsonConfig struct {
	Address                      string         `json:"address"`
	APIPrefix                    string         `json:"api_prefix"`
	Store                        string         `json:"store"`
	DatabaseDSN                  string         `json:"database_dsn"`
	UsersFile                    string         `json:"users_file"`
	SecretKey                    string         `json:"secret_key"`
	BcryptCost                   int            `json:"bcrypt_cost"`
	PreAuthTokenValidityDuration timex.Duration `json:"pre_auth_token_validity_duration"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	CodeValidityDuration         timex.Duration `json:"code_validity_duration"`
	ResendInterval               timex.Duration `json:"resend_interval"`
	MaxCodeAttempts              int            `json:"max_code_attempts"`
	ShutdownTimeout              timex.Duration `json:"shutdown_timeout"`
	LogLevel                     string         `json:"log_level"`
	LogFormat                    string         `json:"log_format"`
}

// LoadFile overlays c with the JSON file at path.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	for dst, v := range map[*string]string{
		&c.Address:     jc.Address,
		&c.APIPrefix:   jc.APIPrefix,
		&c.Store:       jc.Store,
		&c.DatabaseDSN: jc.DatabaseDSN,
		&c.UsersFile:   jc.UsersFile,
		&c.SecretKey:   jc.SecretKey,
		&c.LogLevel:    jc.LogLevel,
		&c.LogFormat:   jc.LogFormat,
	} {
		if v != "" {
			*dst = v
		}
	}
	for dst, v := range map[*int]int{
		&c.BcryptCost:      jc.BcryptCost,
		&c.MaxCodeAttempts: jc.MaxCodeAttempts,
	} {
		if v != 0 {
			*dst = v
		}
	}
	for dst, v := range map[*time.Duration]timex.Duration{
		&c.PreAuthTokenValidityDuration: jc.PreAuthTokenValidityDuration,
		&c.AccessTokenValidityDuration:  jc.AccessTokenValidityDuration,
		&c.RefreshTokenValidityDuration: jc.RefreshTokenValidityDuration,
		&c.CodeValidityDuration:         jc.CodeValidityDuration,
		&c.ResendInterval:               jc.ResendInterval,
		&c.ShutdownTimeout:              jc.ShutdownTimeout,
	} {
		if v.Duration != 0 {
			*dst = v.Duration
		}
	}
	return nil
}
