// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package config loads the environment variables from spec.md §6 into a
// validated AppConfig, the way integration-api/config does it: viper with
// a double-underscore key delimiter, an optional .env file, then
// go-playground/validator on the unmarshaled struct.
package config

import (
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AppConfig mirrors every environment variable spec.md §6 names, grouped
// by the component that consumes it.
type AppConfig struct {
	MaxConnections int  `mapstructure:"max_connections" validate:"required,min=1"`
	PoolingEnabled bool `mapstructure:"pooling_enabled"`

	ConnTimeoutMs   int `mapstructure:"conn_timeout_ms" validate:"required,min=1"`
	TotalTimeoutMs  int `mapstructure:"total_timeout_ms" validate:"required,min=1"`
	GracefulCloseMs int `mapstructure:"graceful_close_ms" validate:"required,min=1"`

	MaxRetries  int `mapstructure:"max_retries" validate:"min=0"`
	BaseRetryMs int `mapstructure:"base_retry_ms" validate:"required,min=1"`
	MaxRetryMs  int `mapstructure:"max_retry_ms" validate:"required,min=1"`

	BreakerFailures   int `mapstructure:"breaker_failures" validate:"required,min=1"`
	BreakerRecoveryMs int `mapstructure:"breaker_recovery_ms" validate:"required,min=1"`
	BreakerProbes     int `mapstructure:"breaker_probes" validate:"required,min=1"`

	MaxBufferBytes int     `mapstructure:"max_buffer_bytes" validate:"required,min=1"`
	WarnThreshold  float64 `mapstructure:"warn_threshold" validate:"required,gt=0,lte=1"`
	CleanupMs      int     `mapstructure:"cleanup_ms" validate:"required,min=1"`

	MaxTextChars int `mapstructure:"max_text_chars" validate:"required,min=1"`
	MaxSSMLBytes int `mapstructure:"max_ssml_bytes" validate:"required,min=1"`
}

// ConnTimeout, TotalTimeout, and GracefulClose convert the millisecond
// fields to time.Duration, the unit connection.Options expects.
func (c *AppConfig) ConnTimeout() time.Duration      { return time.Duration(c.ConnTimeoutMs) * time.Millisecond }
func (c *AppConfig) TotalTimeout() time.Duration     { return time.Duration(c.TotalTimeoutMs) * time.Millisecond }
func (c *AppConfig) GracefulClose() time.Duration    { return time.Duration(c.GracefulCloseMs) * time.Millisecond }
func (c *AppConfig) BaseRetry() time.Duration        { return time.Duration(c.BaseRetryMs) * time.Millisecond }
func (c *AppConfig) MaxRetry() time.Duration         { return time.Duration(c.MaxRetryMs) * time.Millisecond }
func (c *AppConfig) BreakerRecovery() time.Duration  { return time.Duration(c.BreakerRecoveryMs) * time.Millisecond }
func (c *AppConfig) Cleanup() time.Duration          { return time.Duration(c.CleanupMs) * time.Millisecond }

// InitViper builds a viper instance reading ENV_PATH (or ./.env) plus the
// process environment, double-underscore delimited for nested keys.
func InitViper() (*viper.Viper, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))

	v.AddConfigPath(".")
	v.SetConfigName(".env")
	v.SetConfigType("env")
	if path := os.Getenv("ENV_PATH"); path != "" {
		v.SetConfigFile(path)
	}
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("edgetts: reading config from environment variables only: %v", err)
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("MAX_CONNECTIONS", 1)
	v.SetDefault("POOLING_ENABLED", false)

	v.SetDefault("CONN_TIMEOUT_MS", 10_000)
	v.SetDefault("TOTAL_TIMEOUT_MS", 30_000)
	v.SetDefault("GRACEFUL_CLOSE_MS", 1_000)

	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("BASE_RETRY_MS", 1_000)
	v.SetDefault("MAX_RETRY_MS", 10_000)

	v.SetDefault("BREAKER_FAILURES", 5)
	v.SetDefault("BREAKER_RECOVERY_MS", 30_000)
	v.SetDefault("BREAKER_PROBES", 3)

	v.SetDefault("MAX_BUFFER_BYTES", 16_777_216)
	v.SetDefault("WARN_THRESHOLD", 0.80)
	v.SetDefault("CLEANUP_MS", 60_000)

	v.SetDefault("MAX_TEXT_CHARS", 4_000)
	v.SetDefault("MAX_SSML_BYTES", 65_536)
}

// Load unmarshals and validates v into an AppConfig.
func Load(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
