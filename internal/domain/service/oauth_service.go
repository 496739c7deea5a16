package service

import (
	"context"
)

// OAuthToken is what the provider returned from the code exchange.
type OAuthToken struct {
	AccessToken string
	Blob        []byte // JSON serialization of the full provider token.
}

// OAuthProfile represents user information from the OAuth provider.
type OAuthProfile struct {
	ID         string // Provider-specific user ID (Google's 'sub' / 'id')
	Email      string
	GivenName  string
	FamilyName string
	Picture    string // URL to the user's profile picture
}

// OAuthExchanger performs the server side of the authorization code flow.
type OAuthExchanger interface {
	// AuthCodeURL returns the provider consent URL.
	AuthCodeURL() string

	// Exchange trades an authorization code for a provider token.
	Exchange(ctx context.Context, code string) (*OAuthToken, error)

	// FetchProfile retrieves the user profile authorized by token.
	FetchProfile(ctx context.Context, token *OAuthToken) (*OAuthProfile, error)
}
