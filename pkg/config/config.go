// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the fully-resolved process configuration from the
// environment. After Load returns, no component reads the environment or
// any other process-wide state: everything is passed down from here.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// MinSecretLength is the minimum length of the JWT signing secret in
// bytes. 32 bytes (256 bits) is required per OWASP/NIST guidelines.
const MinSecretLength = 32

// Environment variable names read by Load. Names are kept from the
// original deployment so existing environments keep working.
var envKeys = []string{
	"JWT_SECRET_KEY",
	"JWT_ALGORITHM",
	"JWT_ISSUER",
	"REDIS_HOST",
	"REDIS_PORT",
	"REDIS_USER",
	"REDIS_PASSWORD",
	"POSTGRES_HOST",
	"POSTGRES_PORT",
	"POSTGRES_USER",
	"POSTGRES_PASSWORD",
	"POSTGRES_DB",
	"VK_APP_ID",
	"VK_APP_SECRET",
	"VK_REDIRECT_URI",
	"YANDEX_APP_ID",
	"YANDEX_APP_SECRET",
	"OIDC_ISSUER",
	"OIDC_APP_ID",
	"OIDC_APP_SECRET",
	"OIDC_REDIRECT_URI",
	"SERVER_HOST",
	"SERVER_PORT",
}

// Config is the pure configuration for the tessera process. All values
// are fully resolved (no file paths, no env var references).
type Config struct {
	JWT      JWTConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Server   ServerConfig

	// VK and Yandex carry the app registrations for the built-in
	// provider adapters; OIDC configures the generic discovery-based
	// adapter. An empty app id leaves the adapter unregistered.
	VK     ProviderConfig
	Yandex ProviderConfig
	OIDC   OIDCProviderConfig
}

// JWTConfig configures token signing.
type JWTConfig struct {
	// SecretKey is the HS256 signing secret. Must be at least
	// MinSecretLength bytes and consistent across replicas.
	SecretKey string

	// Algorithm is the signing algorithm. Only HS256 is accepted.
	Algorithm string

	// Issuer is stamped into the iss claim of every issued token.
	Issuer string
}

// RedisConfig configures the session and codes store connection.
type RedisConfig struct {
	Host     string
	Port     string
	Username string
	Password string
}

// PostgresConfig configures the repository connection.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string
	Port string
}

// Address returns the host:port the server listens on.
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

// ProviderConfig is an identity provider app registration. RedirectURI
// stays empty for providers that fix it on the app registration
// (Yandex).
type ProviderConfig struct {
	AppID       string
	AppSecret   string
	RedirectURI string
}

// Configured reports whether the provider has an app registration.
func (p ProviderConfig) Configured() bool {
	return p.AppID != ""
}

// OIDCProviderConfig is the app registration for the generic
// OIDC-discoverable provider.
type OIDCProviderConfig struct {
	Issuer      string
	AppID       string
	AppSecret   string
	RedirectURI string
}

// Configured reports whether the OIDC provider has an app registration.
func (p OIDCProviderConfig) Configured() bool {
	return p.Issuer != "" && p.AppID != ""
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for _, key := range envKeys {
		// AutomaticEnv alone does not surface unset-but-bound keys on
		// Get; explicit binds make every key addressable.
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}
	applyDefaults(v)

	cfg := &Config{
		JWT: JWTConfig{
			SecretKey: v.GetString("JWT_SECRET_KEY"),
			Algorithm: v.GetString("JWT_ALGORITHM"),
			Issuer:    v.GetString("JWT_ISSUER"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Username: v.GetString("REDIS_USER"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		Postgres: PostgresConfig{
			Host:     v.GetString("POSTGRES_HOST"),
			Port:     v.GetString("POSTGRES_PORT"),
			User:     v.GetString("POSTGRES_USER"),
			Password: v.GetString("POSTGRES_PASSWORD"),
			Database: v.GetString("POSTGRES_DB"),
		},
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetString("SERVER_PORT"),
		},
		VK: ProviderConfig{
			AppID:       v.GetString("VK_APP_ID"),
			AppSecret:   v.GetString("VK_APP_SECRET"),
			RedirectURI: v.GetString("VK_REDIRECT_URI"),
		},
		Yandex: ProviderConfig{
			AppID:     v.GetString("YANDEX_APP_ID"),
			AppSecret: v.GetString("YANDEX_APP_SECRET"),
		},
		OIDC: OIDCProviderConfig{
			Issuer:      v.GetString("OIDC_ISSUER"),
			AppID:       v.GetString("OIDC_APP_ID"),
			AppSecret:   v.GetString("OIDC_APP_SECRET"),
			RedirectURI: v.GetString("OIDC_REDIRECT_URI"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the Config is complete and consistent. It
// returns the first violation it finds.
func (c *Config) Validate() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if len(c.JWT.SecretKey) < MinSecretLength {
		return fmt.Errorf("JWT_SECRET_KEY must be at least %d bytes", MinSecretLength)
	}
	if c.JWT.Algorithm != "HS256" {
		return fmt.Errorf("unsupported JWT_ALGORITHM %q: only HS256 is supported", c.JWT.Algorithm)
	}
	if c.JWT.Issuer == "" {
		return fmt.Errorf("JWT_ISSUER is required")
	}
	if c.VK.Configured() && c.VK.RedirectURI == "" {
		return fmt.Errorf("VK_REDIRECT_URI is required when VK_APP_ID is set")
	}
	if c.OIDC.AppID != "" && c.OIDC.Issuer == "" {
		return fmt.Errorf("OIDC_ISSUER is required when OIDC_APP_ID is set")
	}
	return nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("JWT_ALGORITHM", "HS256")
	v.SetDefault("JWT_ISSUER", "https://tessera.local")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_DB", "tessera")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8080")
}
