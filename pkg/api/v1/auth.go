// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/tessera/pkg/auth"
	"github.com/stacklok/tessera/pkg/core"
	"github.com/stacklok/tessera/pkg/errors"
)

// AuthRoutes defines the routes for the authentication API within a
// realm. The realm slug comes from the enclosing {realm} URL segment.
type AuthRoutes struct {
	auth    *auth.Service
	metrics Recorder
}

// AuthRouter creates a new router for the authentication API.
func AuthRouter(authSvc *auth.Service, metrics Recorder) http.Handler {
	routes := AuthRoutes{auth: authSvc, metrics: orNop(metrics)}

	r := chi.NewRouter()
	r.Post("/token", routes.clientToken)
	r.Post("/login", routes.login)
	r.Post("/introspect", routes.introspect)
	r.Post("/refresh", routes.refresh)
	r.Post("/logout", routes.logout)
	r.Post("/switch-realm", routes.switchRealm)
	return r
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Scope        string `json:"scope"`
}

// parseTokenRequest accepts both the form encoding of RFC 6749 and the
// JSON body the original service took.
func parseTokenRequest(r *http.Request) (tokenRequest, error) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return tokenRequest{}, errors.NewBadRequestError("Invalid request body", err)
		}
		return tokenRequest{
			GrantType:    r.PostForm.Get("grant_type"),
			ClientID:     r.PostForm.Get("client_id"),
			ClientSecret: r.PostForm.Get("client_secret"),
			Scope:        r.PostForm.Get("scope"),
		}, nil
	}

	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		return tokenRequest{}, err
	}
	return req, nil
}

func (a *AuthRoutes) clientToken(w http.ResponseWriter, r *http.Request) {
	realm := chi.URLParam(r, "realm")
	req, err := parseTokenRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tok, err := a.auth.AuthenticateClient(r.Context(), realm,
		core.GrantType(req.GrantType), req.ClientID, req.ClientSecret, req.Scope)
	a.metrics.RecordAuthAttempt("client", outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.metrics.RecordTokenIssued("client_access")

	writeJSON(w, http.StatusOK, tok)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *AuthRoutes) login(w http.ResponseWriter, r *http.Request) {
	realm := chi.URLParam(r, "realm")
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	pair, err := a.auth.AuthenticateUser(r.Context(), realm, req.Email, req.Password)
	a.metrics.RecordAuthAttempt("password", outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.metrics.RecordTokenIssued("user_pair")

	setSessionCookie(w, pair.SessionID)
	writeJSON(w, http.StatusOK, pair)
}

type introspectRequest struct {
	Token string `json:"token"`

	// TokenTypeHint is accepted for RFC 7662 compatibility but the
	// principal kind is decided by the presence of the session cookie.
	TokenTypeHint string `json:"token_type_hint,omitempty"`
}

func (a *AuthRoutes) introspect(w http.ResponseWriter, r *http.Request) {
	realm := chi.URLParam(r, "realm")
	var req introspectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	// A session cookie means a user token; bare calls are client
	// tokens, which need no session.
	if sid := sessionID(r); sid != "" {
		claims, err := a.auth.IntrospectUser(r.Context(), req.Token, realm, sid)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, claims)
		return
	}

	claims, err := a.auth.IntrospectClient(req.Token, realm)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *AuthRoutes) refresh(w http.ResponseWriter, r *http.Request) {
	realm := chi.URLParam(r, "realm")
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	pair, err := a.auth.Refresh(r.Context(), req.RefreshToken, realm, sessionID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.metrics.RecordTokenIssued("user_pair")

	setSessionCookie(w, pair.SessionID)
	writeJSON(w, http.StatusOK, pair)
}

func (a *AuthRoutes) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.auth.Logout(r.Context(), sessionID(r)); err != nil {
		writeError(w, r, err)
		return
	}

	clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type switchRealmRequest struct {
	TargetRealm  string `json:"target_realm"`
	RefreshToken string `json:"refresh_token"`
}

func (a *AuthRoutes) switchRealm(w http.ResponseWriter, r *http.Request) {
	realm := chi.URLParam(r, "realm")
	var req switchRealmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	pair, err := a.auth.SwitchRealm(r.Context(), realm, req.TargetRealm, req.RefreshToken, sessionID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.metrics.RecordTokenIssued("user_pair")

	setSessionCookie(w, pair.SessionID)
	writeJSON(w, http.StatusOK, pair)
}
