// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "HS256", cfg.JWT.Algorithm)
	assert.Equal(t, "https://tessera.local", cfg.JWT.Issuer)
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, "6379", cfg.Redis.Port)
	assert.Equal(t, "postgres", cfg.Postgres.User)
	assert.Equal(t, "tessera", cfg.Postgres.Database)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.False(t, cfg.VK.Configured())
	assert.False(t, cfg.Yandex.Configured())
	assert.False(t, cfg.OIDC.Configured())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", testSecret)
	t.Setenv("JWT_ISSUER", "https://sso.example.com")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_DB", "sso")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("VK_APP_ID", "vk-app")
	t.Setenv("VK_APP_SECRET", "vk-secret")
	t.Setenv("VK_REDIRECT_URI", "https://sso.example.com/api/v1/master/vk/registration")
	t.Setenv("YANDEX_APP_ID", "ya-app")
	t.Setenv("YANDEX_APP_SECRET", "ya-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://sso.example.com", cfg.JWT.Issuer)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "sso", cfg.Postgres.Database)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Address())
	assert.True(t, cfg.VK.Configured())
	assert.True(t, cfg.Yandex.Configured())
	assert.Empty(t, cfg.Yandex.RedirectURI)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWT: JWTConfig{
				SecretKey: testSecret,
				Algorithm: "HS256",
				Issuer:    "https://tessera.local",
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing secret",
			mutate:  func(c *Config) { c.JWT.SecretKey = "" },
			wantErr: "JWT_SECRET_KEY is required",
		},
		{
			name:    "short secret",
			mutate:  func(c *Config) { c.JWT.SecretKey = "too-short" },
			wantErr: "at least 32 bytes",
		},
		{
			name:    "unsupported algorithm",
			mutate:  func(c *Config) { c.JWT.Algorithm = "RS256" },
			wantErr: "only HS256",
		},
		{
			name:    "missing issuer",
			mutate:  func(c *Config) { c.JWT.Issuer = "" },
			wantErr: "JWT_ISSUER is required",
		},
		{
			name:    "vk without redirect uri",
			mutate:  func(c *Config) { c.VK.AppID = "vk-app" },
			wantErr: "VK_REDIRECT_URI is required",
		},
		{
			name:    "oidc without issuer",
			mutate:  func(c *Config) { c.OIDC.AppID = "oidc-app" },
			wantErr: "OIDC_ISSUER is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr),
				"error %q should contain %q", err, tt.wantErr)
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "short")

	_, err := Load()
	assert.Error(t, err)
}
