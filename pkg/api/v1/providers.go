// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/tessera/pkg/idp"
)

// ProviderRoutes defines the third-party login routes within a realm.
// The realm slug and provider name come from the enclosing URL
// segments.
type ProviderRoutes struct {
	engine  *idp.Engine
	metrics Recorder
}

// ProviderRouter creates a new router for third-party logins.
func ProviderRouter(engine *idp.Engine, metrics Recorder) http.Handler {
	routes := ProviderRoutes{engine: engine, metrics: orNop(metrics)}

	r := chi.NewRouter()
	r.Get("/link", routes.link)
	r.Get("/registration", routes.register)
	r.Get("/authentication", routes.authenticate)
	return r
}

// link starts a login attempt and sends the user to the provider.
func (p *ProviderRoutes) link(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	authURL, err := p.engine.AuthorizationURL(r.Context(), provider)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// callback reads the query parameters every provider sends back.
func callback(r *http.Request) idp.Callback {
	q := r.URL.Query()
	return idp.Callback{
		Code:     q.Get("code"),
		State:    q.Get("state"),
		DeviceID: q.Get("device_id"),
	}
}

// register completes a callback by creating a linked account and
// opening a session.
func (p *ProviderRoutes) register(w http.ResponseWriter, r *http.Request) {
	realm := chi.URLParam(r, "realm")
	provider := chi.URLParam(r, "provider")

	pair, err := p.engine.Register(r.Context(), realm, provider, callback(r))
	p.metrics.RecordAuthAttempt(provider, outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	p.metrics.RecordTokenIssued("user_pair")

	setSessionCookie(w, pair.SessionID)
	writeJSON(w, http.StatusCreated, pair)
}

// authenticate completes a callback for an already linked account.
func (p *ProviderRoutes) authenticate(w http.ResponseWriter, r *http.Request) {
	realm := chi.URLParam(r, "realm")
	provider := chi.URLParam(r, "provider")

	pair, err := p.engine.Authenticate(r.Context(), realm, provider, callback(r))
	p.metrics.RecordAuthAttempt(provider, outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	p.metrics.RecordTokenIssued("user_pair")

	setSessionCookie(w, pair.SessionID)
	writeJSON(w, http.StatusOK, pair)
}
