// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/tessera/pkg/logger"
)

// Pinger is a backing service the health check probes.
type Pinger interface {
	// Name identifies the service in failure logs.
	Name() string

	// Ping verifies connectivity.
	Ping(ctx context.Context) error
}

// HealthcheckRouter sets up the healthcheck route over the given
// backing services.
func HealthcheckRouter(pingers ...Pinger) http.Handler {
	routes := &healthcheckRoutes{pingers: pingers}
	r := chi.NewRouter()
	r.Get("/", routes.getHealthcheck)
	return r
}

type healthcheckRoutes struct {
	pingers []Pinger
}

func (h *healthcheckRoutes) getHealthcheck(w http.ResponseWriter, r *http.Request) {
	for _, p := range h.pingers {
		if err := p.Ping(r.Context()); err != nil {
			logger.Errorw("health check failed", "service", p.Name(), "error", err)
			http.Error(w, p.Name()+" unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// PingFunc adapts a named function to the Pinger interface.
type PingFunc struct {
	ServiceName string
	Func        func(ctx context.Context) error
}

// Name implements Pinger.
func (p PingFunc) Name() string { return p.ServiceName }

// Ping implements Pinger.
func (p PingFunc) Ping(ctx context.Context) error { return p.Func(ctx) }
