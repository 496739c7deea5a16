package service

import (
	"errors"
	"time"

	"leapcode/internal/domain/entity"

	"github.com/google/uuid"
)

// Token decoding failures. Decode never returns partial claims alongside one of these.
var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenSignature    = errors.New("token signature invalid")
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenKindMismatch = errors.New("token kind mismatch")
)

// TokenService defines the interface for generating and validating signed tokens.
// This abstracts the details of token creation from the use cases.
type TokenService interface {
	// Encode signs a token of the given kind for subject, expiring after ttl.
	Encode(subject uuid.UUID, kind entity.TokenKind, ttl time.Duration, secret []byte) (string, error)

	// Decode verifies signature and expiry under secret and returns the claims.
	Decode(token string, secret []byte) (*entity.TokenClaims, error)

	// GenerateTokens mints an access token and a refresh token for userID.
	GenerateTokens(userID uuid.UUID) (*entity.TokenPair, error)

	// ValidateAccessToken decodes an access token and checks its kind.
	ValidateAccessToken(token string) (*entity.TokenClaims, error)

	// ValidateRefreshToken decodes a refresh token and checks its kind.
	ValidateRefreshToken(token string) (*entity.TokenClaims, error)

	// AccessTTL returns the configured lifetime of access tokens.
	AccessTTL() time.Duration

	// RefreshTTL returns the configured lifetime of refresh tokens.
	RefreshTTL() time.Duration
}
