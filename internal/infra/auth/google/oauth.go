// Package google implements the authorization code flow against Google's OAuth endpoints.
package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"leapcode/config"
	"leapcode/internal/domain/service"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

	scopeOpenID  = "openid"
	scopeProfile = "profile"
	scopeEmail   = "email"

	defaultTimeout = 10 * time.Second
	maxProfileSize = 1 << 20
)

// OAuthService exchanges authorization codes and reads the Google profile
type OAuthService struct {
	cfg         *oauth2.Config
	userInfoURL string
	timeout     time.Duration
}

// Option customizes an OAuthService.
type Option func(*OAuthService)

// WithEndpoint overrides the provider authorization and token endpoints.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(s *OAuthService) {
		s.cfg.Endpoint = endpoint
	}
}

// WithUserInfoURL overrides the userinfo endpoint.
func WithUserInfoURL(url string) Option {
	return func(s *OAuthService) {
		s.userInfoURL = url
	}
}

// NewOAuthService creates a new Google OAuth service
func NewOAuthService(cfg *config.Config, opts ...Option) service.OAuthExchanger {
	s := &OAuthService{
		cfg: &oauth2.Config{
			ClientID:     cfg.GoogleOAuth.ClientID,
			ClientSecret: cfg.GoogleOAuth.ClientSecret,
			RedirectURL:  cfg.GoogleOAuth.RedirectURI,
			Scopes:       []string{scopeOpenID, scopeProfile, scopeEmail},
			Endpoint:     endpoints.Google,
		},
		userInfoURL: googleUserInfoURL,
		timeout:     cfg.GoogleOAuth.Timeout,
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// AuthCodeURL returns the consent page URL requesting offline access.
// No state parameter is issued; the callback does not validate one.
func (s *OAuthService) AuthCodeURL() string {
	return s.cfg.AuthCodeURL("", oauth2.AccessTypeOffline)
}

// Exchange exchanges an authorization code for a provider token
func (s *OAuthService) Exchange(ctx context.Context, code string) (*service.OAuthToken, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tok, err := s.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "failed to exchange code for token")
	}

	blob, err := marshalToken(tok)
	if err != nil {
		return nil, err
	}

	return &service.OAuthToken{
		AccessToken: tok.AccessToken,
		Blob:        blob,
	}, nil
}

// FetchProfile retrieves user information using the exchanged access token
func (s *OAuthService) FetchProfile(ctx context.Context, token *service.OAuthToken) (*service.OAuthProfile, error) {
	if token == nil || token.AccessToken == "" {
		return nil, errors.New("missing provider access token")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token.AccessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create user info request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user info")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileSize))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read user info response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("user info request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var googleUser struct {
		Sub        string `json:"sub"`
		Email      string `json:"email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Picture    string `json:"picture"`
	}
	if err := json.Unmarshal(body, &googleUser); err != nil {
		return nil, errors.Wrap(err, "failed to decode user info response")
	}

	if googleUser.Sub == "" || googleUser.Email == "" {
		return nil, errors.New("user info response is missing sub or email")
	}

	return &service.OAuthProfile{
		ID:         googleUser.Sub,
		Email:      googleUser.Email,
		GivenName:  googleUser.GivenName,
		FamilyName: googleUser.FamilyName,
		Picture:    googleUser.Picture,
	}, nil
}

// withTimeout bounds the call and routes oauth2 traffic through a client with the same timeout.
func (s *OAuthService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: s.timeout})

	return context.WithTimeout(ctx, s.timeout)
}

// providerToken is the stored form of the provider token.
// The classroom integration rebuilds provider credentials from it.
type providerToken struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`
	IDToken      string    `json:"id_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
}

func marshalToken(tok *oauth2.Token) ([]byte, error) {
	stored := providerToken{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		stored.IDToken = idToken
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		stored.Scope = scope
	}

	blob, err := json.Marshal(stored)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode provider token")
	}

	return blob, nil
}
