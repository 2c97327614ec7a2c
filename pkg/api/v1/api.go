// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package v1 contains the v1 REST handlers for tessera.
package v1

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/stacklok/tessera/pkg/errors"
	"github.com/stacklok/tessera/pkg/logger"
	"github.com/stacklok/tessera/pkg/store"
)

// SessionCookie is the cookie carrying the session id beside the
// tokens. Token responses also return the id in the body for
// non-browser callers.
const SessionCookie = "session_id"

// Recorder counts authentication outcomes and issued tokens. The api
// package provides the Prometheus-backed implementation.
type Recorder interface {
	// RecordAuthAttempt counts one authentication attempt of the given
	// kind (client, password, provider name) and outcome.
	RecordAuthAttempt(kind, outcome string)

	// RecordTokenIssued counts one issued token of the given kind.
	RecordTokenIssued(kind string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthAttempt(string, string) {}
func (nopRecorder) RecordTokenIssued(string)         {}

// orNop makes a nil Recorder safe to call.
func orNop(rec Recorder) Recorder {
	if rec == nil {
		return nopRecorder{}
	}
	return rec
}

// outcome maps an authentication result to a metric label.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return "failure"
}

// errorResponse is the error envelope every endpoint answers with.
type errorResponse struct {
	Detail string `json:"detail"`
}

// writeError renders err with the status from its error type. Errors
// without a mapped type are logged and answered as a bare 500 so
// internals never leak to the caller.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	detail := errors.Message(err)
	if status == http.StatusInternalServerError {
		logger.Errorw("request failed", "path", r.URL.Path, "error", err)
		detail = "Internal server error"
	}
	writeJSON(w, status, errorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("failed to encode response: %v", err)
	}
}

// decodeJSON parses a request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.NewBadRequestError("Invalid request body", err)
	}
	return nil
}

// setSessionCookie attaches the session id for the session's lifetime.
func setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(store.SessionTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie removes the session cookie on logout.
func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionID reads the session cookie; empty when absent.
func sessionID(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}
