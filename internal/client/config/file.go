package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/gophadmin/internal/timex"
)

// fileConfig is a DTO used exclusively for file decoding. Zero values mean
// "not set" and leave the current setting alone.
type fileConfig struct {
	ServerURL      string         `json:"server_url" yaml:"server_url"`
	APIPrefix      string         `json:"api_prefix" yaml:"api_prefix"`
	RequestTimeout timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	TokenStore     string         `json:"token_store" yaml:"token_store"`
	DatabaseDSN    string         `json:"database_dsn" yaml:"database_dsn"`
	RedisAddr      string         `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword  string         `json:"redis_password" yaml:"redis_password"`
	RedisDB        int            `json:"redis_db" yaml:"redis_db"`
	SealSalt       string         `json:"seal_salt" yaml:"seal_salt"`
	ResendWindow   timex.Duration `json:"resend_window" yaml:"resend_window"`
	LogLevel       string         `json:"log_level" yaml:"log_level"`
	LogFormat      string         `json:"log_format" yaml:"log_format"`
}

// LoadFile overlays c with the file at path. ".yaml" and ".yml" are decoded
// as YAML, anything else as JSON.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.ServerURL, fc.ServerURL)
	setString(&c.APIPrefix, fc.APIPrefix)
	setString(&c.TokenStore, fc.TokenStore)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setString(&c.RedisAddr, fc.RedisAddr)
	setString(&c.RedisPassword, fc.RedisPassword)
	setString(&c.SealSalt, fc.SealSalt)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	if fc.RedisDB != 0 {
		c.RedisDB = fc.RedisDB
	}
	if fc.RequestTimeout.Duration != 0 {
		c.RequestTimeout = fc.RequestTimeout.Duration
	}
	if fc.ResendWindow.Duration != 0 {
		c.ResendWindow = fc.ResendWindow.Duration
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
