// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/tessera/pkg/auth"
	"github.com/stacklok/tessera/pkg/errors"
)

// RegistrationRoutes defines the local account registration route.
type RegistrationRoutes struct {
	auth    *auth.Service
	metrics Recorder
}

// RegistrationRouter creates a new router for local registration.
func RegistrationRouter(authSvc *auth.Service, metrics Recorder) http.Handler {
	routes := RegistrationRoutes{auth: authSvc, metrics: orNop(metrics)}

	r := chi.NewRouter()
	r.Post("/", routes.register)
	return r
}

type registrationRequest struct {
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// register creates a local account and immediately opens a session for
// it, so registration doubles as the first login.
func (rr *RegistrationRoutes) register(w http.ResponseWriter, r *http.Request) {
	realm := chi.URLParam(r, "realm")
	var req registrationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, errors.NewBadRequestError("Email and password are required", nil))
		return
	}

	user, err := rr.auth.RegisterUser(r.Context(), req.Email, req.Username, req.Password)
	rr.metrics.RecordAuthAttempt("registration", outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}

	roles, err := rr.auth.ResolveRoles(r.Context(), realm, user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pair, err := rr.auth.StartSession(r.Context(), user, realm, roles)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rr.metrics.RecordTokenIssued("user_pair")

	setSessionCookie(w, pair.SessionID)
	writeJSON(w, http.StatusCreated, pair)
}
