// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package idp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/stacklok/tessera/pkg/networking"
	"github.com/stacklok/tessera/pkg/store"
)

const (
	yandexAuthBaseURL = "https://oauth.yandex.ru"
	yandexInfoBaseURL = "https://login.yandex.ru"
	yandexScope       = "login:info login:email"
)

// YandexConfig configures the Yandex OAuth integration. Yandex is a
// confidential client: the token exchange carries the client secret,
// and the authorize URL takes no redirect URI (it is fixed on the app
// registration).
type YandexConfig struct {
	// ClientID is the Yandex application id.
	ClientID string

	// ClientSecret is the Yandex application secret.
	ClientSecret string

	// AuthBaseURL overrides the oauth.yandex.ru base for tests.
	AuthBaseURL string

	// InfoBaseURL overrides the login.yandex.ru base for tests.
	InfoBaseURL string
}

// Yandex implements Provider against the Yandex OAuth endpoints.
type Yandex struct {
	codesFlow
	clientID     string
	clientSecret string
	authBaseURL  string
	infoBaseURL  string
	client       networking.HTTPClient
}

var _ Provider = (*Yandex)(nil)

// NewYandex creates the Yandex adapter. A nil client falls back to the
// default timeout-bounded one.
func NewYandex(cfg YandexConfig, codes store.CodesStore, client networking.HTTPClient) *Yandex {
	if cfg.AuthBaseURL == "" {
		cfg.AuthBaseURL = yandexAuthBaseURL
	}
	if cfg.InfoBaseURL == "" {
		cfg.InfoBaseURL = yandexInfoBaseURL
	}
	if client == nil {
		client = networking.NewHTTPClient()
	}
	return &Yandex{
		codesFlow:    codesFlow{codes: codes},
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		authBaseURL:  strings.TrimSuffix(cfg.AuthBaseURL, "/"),
		infoBaseURL:  strings.TrimSuffix(cfg.InfoBaseURL, "/"),
		client:       client,
	}
}

// Name returns "yandex".
func (*Yandex) Name() string {
	return "yandex"
}

// AuthorizationURL builds the Yandex authorize URL for a fresh login
// attempt.
func (p *Yandex) AuthorizationURL(ctx context.Context) (string, error) {
	codes, err := p.newCodes(ctx)
	if err != nil {
		return "", err
	}
	params := url.Values{
		"client_id":             {p.clientID},
		"response_type":         {"code"},
		"state":                 {codes.State},
		"scope":                 {yandexScope},
		"code_challenge":        {codes.CodeChallenge},
		"code_challenge_method": {pkceChallengeMethodS256},
	}
	return p.authBaseURL + "/authorize?" + params.Encode(), nil
}

type yandexTokenResponse struct {
	AccessToken string `json:"access_token"`
}

// Exchange trades the callback code for a Yandex OAuth token.
func (p *Yandex) Exchange(ctx context.Context, callback Callback) (string, error) {
	codes, err := p.popCodes(ctx, callback.State)
	if err != nil {
		return "", err
	}
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {callback.Code},
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
		"code_verifier": {codes.CodeVerifier},
	}
	result, err := networking.FetchJSONWithForm[yandexTokenResponse](ctx, p.client, p.authBaseURL+"/token", form)
	if err != nil {
		return "", fmt.Errorf("yandex code exchange: %w", err)
	}
	return result.Data.AccessToken, nil
}

type yandexUserinfoResponse struct {
	ID           providerID `json:"id"`
	DefaultEmail string     `json:"default_email"`
}

// Userinfo fetches the Yandex account behind the OAuth token.
func (p *Yandex) Userinfo(ctx context.Context, accessToken string) (Identity, error) {
	params := url.Values{
		"format":      {"json"},
		"oauth_token": {accessToken},
	}
	result, err := networking.FetchJSON[yandexUserinfoResponse](ctx, p.client, p.infoBaseURL+"/info?"+params.Encode())
	if err != nil {
		return Identity{}, fmt.Errorf("yandex userinfo: %w", err)
	}
	return Identity{
		ProviderUserID: result.Data.ID.String(),
		Email:          strings.ToLower(result.Data.DefaultEmail),
	}, nil
}
