// Package config loads runtime configuration for the gophadmin CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file, JSON or YAML by extension, named by --config/-c
//     or GOPHADMIN_CONFIG.
//  3. A .env file in the working directory, if present, then environment
//     variables prefixed with GOPHADMIN_.
//  4. Command-line flags, only those explicitly set.
//
// # File schema
//
// Durations accept either strings like "15s" or integer nanoseconds:
//
//	server_url: http://127.0.0.1:8080
//	api_prefix: /api/v1
//	request_timeout: 15s
//	token_store: sqlite
//	database_dsn: gophadmin.db
//	redis_addr: 127.0.0.1:6379
//	resend_window: 30s
//	log_level: warn
//	log_format: text
package config
