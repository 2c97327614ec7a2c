// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package networking provides the outbound HTTP plumbing used to talk
// to identity providers: a timeout-bounded client and generic JSON
// fetch helpers.
package networking

import (
	"net/http"
	"time"
)

// HTTPTimeout bounds every outgoing request end to end.
const HTTPTimeout = 30 * time.Second

// HTTPClient is the interface for HTTP client operations. It allows
// substituting a test server client in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns a client with conservative timeouts for
// provider calls.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
		},
		Timeout: HTTPTimeout,
	}
}
