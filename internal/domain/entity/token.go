package entity

import (
	"time"

	"github.com/google/uuid"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	// TokenKindAccess authorizes API calls.
	TokenKindAccess TokenKind = "access"
	// TokenKindRefresh is only accepted by the refresh flow.
	TokenKindRefresh TokenKind = "refresh"
)

// String returns the string representation of the TokenKind.
func (k TokenKind) String() string {
	return string(k)
}

// IsValid checks if the TokenKind is a valid value.
func (k TokenKind) IsValid() bool {
	switch k {
	case TokenKindAccess, TokenKindRefresh:
		return true
	default:
		return false
	}
}

// TokenTypeBearer is the token_type reported to clients.
const TokenTypeBearer = "bearer"

// TokenClaims is the decoded content of a signed token.
type TokenClaims struct {
	Subject   uuid.UUID
	Kind      TokenKind
	ID        string // jti
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is an access token and a refresh token minted together.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}
