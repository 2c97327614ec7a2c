// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the API and implements
// v1.Recorder. One instance lives for the process; its Handler serves
// the /metrics endpoint.
type Metrics struct {
	registry *prometheus.Registry

	authAttempts    *prometheus.CounterVec
	tokensIssued    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics creates the API instruments on a fresh registry together
// with the standard Go and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_auth_attempts_total",
			Help: "Authentication attempts by principal kind and outcome.",
		}, []string{"kind", "outcome"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_tokens_issued_total",
			Help: "Issued tokens by kind.",
		}, []string{"kind"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tessera_request_duration_seconds",
			Help:    "HTTP request duration by route pattern and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
	registry.MustRegister(m.authAttempts, m.tokensIssued, m.requestDuration)
	return m
}

// RecordAuthAttempt implements v1.Recorder.
func (m *Metrics) RecordAuthAttempt(kind, outcome string) {
	m.authAttempts.WithLabelValues(kind, outcome).Inc()
}

// RecordTokenIssued implements v1.Recorder.
func (m *Metrics) RecordTokenIssued(kind string) {
	m.tokensIssued.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware observes request durations labelled by the chi route
// pattern, so realm and provider values never explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		m.requestDuration.
			WithLabelValues(route, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}
