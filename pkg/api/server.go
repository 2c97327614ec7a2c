// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api contains the REST API for tessera.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/stacklok/tessera/pkg/api/v1"
	"github.com/stacklok/tessera/pkg/auth"
	"github.com/stacklok/tessera/pkg/idp"
	"github.com/stacklok/tessera/pkg/logger"
)

// Server timeouts. The middleware timeout bounds handler work; the
// write timeout sits above it so the middleware can still answer.
const (
	middlewareTimeout = 30 * time.Second
	readTimeout       = 10 * time.Second
	writeTimeout      = 15 * time.Second
	idleTimeout       = 60 * time.Second
)

// Deps bundles the wired services the router serves.
type Deps struct {
	// Auth drives the credential flows.
	Auth *auth.Service

	// Providers drives third-party logins. Nil disables the provider
	// routes.
	Providers *idp.Engine

	// Metrics records API metrics and serves /metrics. Nil disables
	// both.
	Metrics *Metrics

	// Pingers back the /health endpoint.
	Pingers []v1.Pinger
}

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per completed request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Infow("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote", r.RemoteAddr,
		)
	})
}

// NewRouter builds the full HTTP surface over the wired services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
		headersMiddleware,
	)
	// The conversion to the Recorder interface must happen under the
	// nil check: a nil *Metrics boxed into the interface would no
	// longer compare equal to nil inside the sub-routers.
	var rec v1.Recorder
	if deps.Metrics != nil {
		rec = deps.Metrics
		r.Use(deps.Metrics.Middleware)
	}

	// The static /auth and /registration segments win over the
	// {provider} wildcard, so provider names can never shadow them.
	r.Route("/api/v1/{realm}", func(r chi.Router) {
		r.Mount("/auth", v1.AuthRouter(deps.Auth, rec))
		r.Mount("/registration", v1.RegistrationRouter(deps.Auth, rec))
		if deps.Providers != nil {
			r.Mount("/{provider}", v1.ProviderRouter(deps.Providers, rec))
		}
	})

	r.Mount("/health", v1.HealthcheckRouter(deps.Pingers...))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	return r
}

// Serve runs the server on the given address until ctx is done, then
// drains in-flight requests. It is assumed that the caller sets up
// appropriate signal handling.
func Serve(ctx context.Context, address string, handler http.Handler, gracefulTimeout time.Duration) error {
	srv := &http.Server{
		BaseContext:  func(net.Listener) context.Context { return ctx },
		Addr:         address,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server listening on %s", address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
