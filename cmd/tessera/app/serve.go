// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"database/sql"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/stacklok/tessera/pkg/api"
	v1 "github.com/stacklok/tessera/pkg/api/v1"
	"github.com/stacklok/tessera/pkg/auth"
	"github.com/stacklok/tessera/pkg/config"
	"github.com/stacklok/tessera/pkg/crypto"
	"github.com/stacklok/tessera/pkg/idp"
	"github.com/stacklok/tessera/pkg/logger"
	"github.com/stacklok/tessera/pkg/repository"
	"github.com/stacklok/tessera/pkg/store"
	"github.com/stacklok/tessera/pkg/token"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the SSO API server",
	Long: `Start the SSO API server. Configuration comes from the environment;
the server connects to Redis and Postgres, retrying with exponential
backoff, and drains in-flight requests on SIGINT/SIGTERM.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time
	maxConnectTries        = 5                // per backing service, before giving up
)

// connectWithRetry dials a backing service with exponential backoff so
// a restart does not lose a race against Redis or Postgres coming up.
func connectWithRetry[T any](ctx context.Context, name string, dial func() (T, error)) (T, error) {
	return backoff.Retry(ctx, dial,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxConnectTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Warnw("connection failed, retrying", "service", name, "wait", wait.String(), "error", err)
		}),
	)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	redisClient, err := connectWithRetry(ctx, "redis", func() (redis.UniversalClient, error) {
		return store.Connect(ctx, store.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
		})
	})
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()

	db, err := connectWithRetry(ctx, "postgres", func() (*sql.DB, error) {
		return repository.Connect(ctx, postgresConfig(cfg))
	})
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	repos := repository.NewPostgres(db)
	sessions := store.NewRedisSessionStore(redisClient)
	codes := store.NewRedisCodesStore(redisClient)

	signer := token.NewSigner([]byte(cfg.JWT.SecretKey), cfg.JWT.Issuer)
	tokens := token.NewService(signer, sessions)
	authSvc := auth.NewService(repos, sessions, tokens, crypto.NewHasher())

	providers, err := buildProviders(ctx, cfg, codes)
	if err != nil {
		return fmt.Errorf("building identity providers: %w", err)
	}
	engine := idp.NewEngine(idp.NewRegistry(providers...), repos, authSvc)

	router := api.NewRouter(api.Deps{
		Auth:      authSvc,
		Providers: engine,
		Metrics:   api.NewMetrics(),
		Pingers: []v1.Pinger{
			v1.PingFunc{ServiceName: "redis", Func: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}},
			v1.PingFunc{ServiceName: "postgres", Func: db.PingContext},
		},
	})

	logger.Infow("starting tessera", "address", cfg.Server.Address(), "issuer", cfg.JWT.Issuer)
	return api.Serve(ctx, cfg.Server.Address(), router, defaultGracefulTimeout)
}

// buildProviders registers an adapter for every provider with an app
// registration in the environment. The identity_providers table still
// gates each one at request time.
func buildProviders(ctx context.Context, cfg *config.Config, codes store.CodesStore) ([]idp.Provider, error) {
	var providers []idp.Provider

	if cfg.VK.Configured() {
		providers = append(providers, idp.NewVK(idp.VKConfig{
			ClientID:    cfg.VK.AppID,
			RedirectURI: cfg.VK.RedirectURI,
		}, codes, nil))
	}
	if cfg.Yandex.Configured() {
		providers = append(providers, idp.NewYandex(idp.YandexConfig{
			ClientID:     cfg.Yandex.AppID,
			ClientSecret: cfg.Yandex.AppSecret,
		}, codes, nil))
	}
	if cfg.OIDC.Configured() {
		oidcProvider, err := idp.NewOIDC(ctx, idp.OIDCConfig{
			Issuer:       cfg.OIDC.Issuer,
			ClientID:     cfg.OIDC.AppID,
			ClientSecret: cfg.OIDC.AppSecret,
			RedirectURI:  cfg.OIDC.RedirectURI,
		}, codes, nil)
		if err != nil {
			return nil, fmt.Errorf("discovering OIDC issuer %s: %w", cfg.OIDC.Issuer, err)
		}
		providers = append(providers, oidcProvider)
	}

	if len(providers) == 0 {
		logger.Info("no identity providers configured, third-party login disabled")
	}
	return providers, nil
}

func postgresConfig(cfg *config.Config) repository.PostgresConfig {
	return repository.PostgresConfig{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Database: cfg.Postgres.Database,
	}
}
