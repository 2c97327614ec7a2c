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
	vkBaseURL = "https://id.vk.com"
	vkScope   = "email"
)

// VKConfig configures the VK ID integration. VK ID is a public PKCE
// client: the token exchange carries no client secret.
type VKConfig struct {
	// ClientID is the VK application id.
	ClientID string

	// RedirectURI is where VK sends the user back.
	RedirectURI string

	// BaseURL overrides the VK ID endpoint base. Tests point it at a
	// local server; empty means the production host.
	BaseURL string
}

// VK implements Provider against the VK ID endpoints.
type VK struct {
	codesFlow
	clientID    string
	redirectURI string
	baseURL     string
	client      networking.HTTPClient
}

var _ Provider = (*VK)(nil)

// NewVK creates the VK adapter. A nil client falls back to the default
// timeout-bounded one.
func NewVK(cfg VKConfig, codes store.CodesStore, client networking.HTTPClient) *VK {
	if cfg.BaseURL == "" {
		cfg.BaseURL = vkBaseURL
	}
	if client == nil {
		client = networking.NewHTTPClient()
	}
	return &VK{
		codesFlow:   codesFlow{codes: codes},
		clientID:    cfg.ClientID,
		redirectURI: cfg.RedirectURI,
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		client:      client,
	}
}

// Name returns "vk".
func (*VK) Name() string {
	return "vk"
}

// AuthorizationURL builds the VK ID authorize URL for a fresh login
// attempt.
func (p *VK) AuthorizationURL(ctx context.Context) (string, error) {
	codes, err := p.newCodes(ctx)
	if err != nil {
		return "", err
	}
	params := url.Values{
		"client_id":             {p.clientID},
		"redirect_uri":          {p.redirectURI},
		"response_type":         {"code"},
		"state":                 {codes.State},
		"scope":                 {vkScope},
		"code_challenge":        {codes.CodeChallenge},
		"code_challenge_method": {pkceChallengeMethodS256},
	}
	return p.baseURL + "/authorize?" + params.Encode(), nil
}

type vkTokenResponse struct {
	AccessToken string     `json:"access_token"`
	UserID      providerID `json:"user_id"`
}

// Exchange trades the callback code for a VK access token. VK takes the
// token request as JSON and wants the device id and state echoed back.
func (p *VK) Exchange(ctx context.Context, callback Callback) (string, error) {
	codes, err := p.popCodes(ctx, callback.State)
	if err != nil {
		return "", err
	}
	payload := map[string]string{
		"grant_type":    "authorization_code",
		"code":          callback.Code,
		"code_verifier": codes.CodeVerifier,
		"client_id":     p.clientID,
		"device_id":     callback.DeviceID,
		"redirect_uri":  p.redirectURI,
		"state":         callback.State,
	}
	result, err := networking.PostJSON[vkTokenResponse](ctx, p.client, p.baseURL+"/oauth2/auth", payload)
	if err != nil {
		return "", fmt.Errorf("vk code exchange: %w", err)
	}
	return result.Data.AccessToken, nil
}

type vkUserinfoResponse struct {
	User struct {
		UserID providerID `json:"user_id"`
		Email  string     `json:"email"`
	} `json:"user"`
}

// Userinfo fetches the VK account behind the access token.
func (p *VK) Userinfo(ctx context.Context, accessToken string) (Identity, error) {
	payload := map[string]string{
		"access_token": accessToken,
		"client_id":    p.clientID,
	}
	result, err := networking.PostJSON[vkUserinfoResponse](ctx, p.client, p.baseURL+"/oauth2/user_info", payload)
	if err != nil {
		return Identity{}, fmt.Errorf("vk userinfo: %w", err)
	}
	return Identity{
		ProviderUserID: result.Data.User.UserID.String(),
		Email:          strings.ToLower(result.Data.User.Email),
	}, nil
}
