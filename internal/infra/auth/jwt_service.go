package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"leapcode/config"
	"leapcode/internal/domain/entity"
	"leapcode/internal/domain/service"
	"leapcode/internal/errors"
)

const (
	defaultAccessTTL  = 5 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// tokenClaims is the wire form of a signed token.
type tokenClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// jwtService is a concrete implementation of the TokenService interface using the JWT standard.
type jwtService struct {
	method        *jwt.SigningMethodHMAC
	accessSecret  []byte        // Secret key for signing access tokens.
	refreshSecret []byte        // Secret key for signing refresh tokens.
	accessTTL     time.Duration // Time-to-live for access tokens.
	refreshTTL    time.Duration // Time-to-live for refresh tokens.
	now           func() time.Time
}

// JWTOption customizes a jwtService.
type JWTOption func(*jwtService)

// WithClock replaces the wall clock used for issuing and validating tokens.
func WithClock(now func() time.Time) JWTOption {
	return func(s *jwtService) {
		s.now = now
	}
}

// NewJWTService is the constructor for jwtService.
// Both secrets must be present and distinct, and the algorithm must be an HMAC method.
func NewJWTService(cfg *config.Config, opts ...JWTOption) (service.TokenService, error) {
	if cfg.SecretKey.Access == "" || cfg.SecretKey.Refresh == "" {
		return nil, errors.New("jwt secrets must be provided")
	}
	if cfg.SecretKey.Access == cfg.SecretKey.Refresh {
		return nil, errors.New("access and refresh secrets must differ")
	}

	algorithm := jwt.SigningMethodHS256.Alg()
	accessTTL, refreshTTL := defaultAccessTTL, defaultRefreshTTL
	if cfg.Token != nil {
		if cfg.Token.Algorithm != "" {
			algorithm = cfg.Token.Algorithm
		}
		if cfg.Token.AccessTTL > 0 {
			accessTTL = cfg.Token.AccessTTL
		}
		if cfg.Token.RefreshTTL > 0 {
			refreshTTL = cfg.Token.RefreshTTL
		}
	}

	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, errors.Errorf("unsupported signing algorithm %q", algorithm)
	}

	s := &jwtService{
		method:        method,
		accessSecret:  []byte(cfg.SecretKey.Access),
		refreshSecret: []byte(cfg.SecretKey.Refresh),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Encode signs a token for subject with the given kind and lifetime.
func (s *jwtService) Encode(subject uuid.UUID, kind entity.TokenKind, ttl time.Duration, secret []byte) (string, error) {
	if !kind.IsValid() {
		return "", errors.Errorf("unknown token kind %q", kind)
	}

	now := s.now()
	claims := tokenClaims{
		Type: kind.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}

	return signed, nil
}

// Decode verifies token under secret and returns its claims.
func (s *jwtService) Decode(token string, secret []byte) (*entity.TokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, errors.Wrap(service.ErrTokenMalformed, "subject is not a uuid")
	}

	kind := entity.TokenKind(claims.Type)
	if !kind.IsValid() {
		return nil, errors.Wrap(service.ErrTokenMalformed, "unknown token type")
	}

	decoded := &entity.TokenClaims{
		Subject: subject,
		Kind:    kind,
		ID:      claims.ID,
	}
	if claims.IssuedAt != nil {
		decoded.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		decoded.ExpiresAt = claims.ExpiresAt.Time
	}

	return decoded, nil
}

// GenerateTokens creates a new access token and refresh token for a given user.
func (s *jwtService) GenerateTokens(userID uuid.UUID) (*entity.TokenPair, error) {
	accessToken, err := s.Encode(userID, entity.TokenKindAccess, s.accessTTL, s.accessSecret)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.Encode(userID, entity.TokenKindRefresh, s.refreshTTL, s.refreshSecret)
	if err != nil {
		return nil, err
	}

	return &entity.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    entity.TokenTypeBearer,
	}, nil
}

// ValidateAccessToken decodes an access token under the access secret.
func (s *jwtService) ValidateAccessToken(token string) (*entity.TokenClaims, error) {
	return s.validate(token, entity.TokenKindAccess, s.accessSecret)
}

// ValidateRefreshToken decodes a refresh token under the refresh secret.
func (s *jwtService) ValidateRefreshToken(token string) (*entity.TokenClaims, error) {
	return s.validate(token, entity.TokenKindRefresh, s.refreshSecret)
}

// AccessTTL returns the configured duration for access tokens.
func (s *jwtService) AccessTTL() time.Duration {
	return s.accessTTL
}

// RefreshTTL returns the configured duration for refresh tokens.
func (s *jwtService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

func (s *jwtService) validate(token string, kind entity.TokenKind, secret []byte) (*entity.TokenClaims, error) {
	claims, err := s.Decode(token, secret)
	if err != nil {
		return nil, err
	}

	if claims.Kind != kind {
		return nil, errors.Wrapf(service.ErrTokenKindMismatch, "expected %s token, got %s", kind, claims.Kind)
	}

	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return errors.Wrap(service.ErrTokenExpired, err.Error())
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return errors.Wrap(service.ErrTokenSignature, err.Error())
	default:
		return errors.Wrap(service.ErrTokenMalformed, err.Error())
	}
}
