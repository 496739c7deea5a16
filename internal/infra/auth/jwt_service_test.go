package auth

import (
	"strings"
	"testing"
	"time"

	"leapcode/config"
	"leapcode/internal/domain/entity"
	"leapcode/internal/domain/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "test_access_secret_key_very_long_for_testing"
	testRefreshSecret = "test_refresh_secret_key_very_long_for_testing"
)

func newTestConfig() *config.Config {
	return &config.Config{
		SecretKey: config.SecretKeyConfig{
			Access:  testAccessSecret,
			Refresh: testRefreshSecret,
		},
		Token: &config.TokenConfig{
			Algorithm:  "HS256",
			AccessTTL:  5 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
	}
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClockedService(t *testing.T) (*jwtService, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewJWTService(newTestConfig(), WithClock(clock.Now))
	require.NoError(t, err)

	return svc.(*jwtService), clock
}

func TestJWTService_GenerateAndValidateTokens(t *testing.T) {
	svc, _ := newClockedService(t)
	userID := uuid.New()

	pair, err := svc.GenerateTokens(userID)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)

	accessClaims, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, accessClaims.Subject)
	assert.Equal(t, entity.TokenKindAccess, accessClaims.Kind)
	assert.NotEmpty(t, accessClaims.ID)
	assert.Equal(t, 5*time.Minute, accessClaims.ExpiresAt.Sub(accessClaims.IssuedAt))

	refreshClaims, err := svc.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, userID, refreshClaims.Subject)
	assert.Equal(t, entity.TokenKindRefresh, refreshClaims.Kind)
	assert.Equal(t, 7*24*time.Hour, refreshClaims.ExpiresAt.Sub(refreshClaims.IssuedAt))

	assert.NotEqual(t, accessClaims.ID, refreshClaims.ID)
}

func TestJWTService_EncodeDecodeRoundTrip(t *testing.T) {
	svc, _ := newClockedService(t)
	subject := uuid.New()
	secret := []byte("round-trip-secret")

	token, err := svc.Encode(subject, entity.TokenKindAccess, time.Minute, secret)
	require.NoError(t, err)

	claims, err := svc.Decode(token, secret)
	require.NoError(t, err)
	assert.Equal(t, subject, claims.Subject)
	assert.Equal(t, entity.TokenKindAccess, claims.Kind)
}

func TestJWTService_CrossSecretRejected(t *testing.T) {
	svc, _ := newClockedService(t)
	pair, err := svc.GenerateTokens(uuid.New())
	require.NoError(t, err)

	// A refresh token never validates as an access token, and vice versa
	_, err = svc.ValidateAccessToken(pair.RefreshToken)
	assert.True(t, errors.Is(err, service.ErrTokenSignature))

	_, err = svc.ValidateRefreshToken(pair.AccessToken)
	assert.True(t, errors.Is(err, service.ErrTokenSignature))
}

func TestJWTService_KindMismatchUnderSameSecret(t *testing.T) {
	svc, _ := newClockedService(t)

	token, err := svc.Encode(uuid.New(), entity.TokenKindRefresh, time.Minute, svc.accessSecret)
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	assert.Nil(t, claims)
	assert.True(t, errors.Is(err, service.ErrTokenKindMismatch))
}

func TestJWTService_ZeroTTLIsExpired(t *testing.T) {
	svc, _ := newClockedService(t)
	secret := []byte("zero-ttl-secret")

	token, err := svc.Encode(uuid.New(), entity.TokenKindAccess, 0, secret)
	require.NoError(t, err)

	claims, err := svc.Decode(token, secret)
	assert.Nil(t, claims)
	assert.True(t, errors.Is(err, service.ErrTokenExpired))
}

func TestJWTService_ExpiresWhenClockAdvances(t *testing.T) {
	svc, clock := newClockedService(t)
	pair, err := svc.GenerateTokens(uuid.New())
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	_, err = svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = svc.ValidateAccessToken(pair.AccessToken)
	assert.True(t, errors.Is(err, service.ErrTokenExpired))

	// The refresh token outlives the access token
	_, err = svc.ValidateRefreshToken(pair.RefreshToken)
	assert.NoError(t, err)
}

func TestJWTService_MalformedTokens(t *testing.T) {
	svc, _ := newClockedService(t)

	for _, token := range []string{"", "clearly-not-a-jwt-token-format", "a.b.c"} {
		claims, err := svc.ValidateAccessToken(token)
		assert.Nil(t, claims)
		assert.True(t, errors.Is(err, service.ErrTokenMalformed), "token %q", token)
	}
}

func TestJWTService_TamperedTokenRejected(t *testing.T) {
	svc, _ := newClockedService(t)
	pair, err := svc.GenerateTokens(uuid.New())
	require.NoError(t, err)

	parts := strings.Split(pair.AccessToken, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = svc.ValidateAccessToken(tampered)
	assert.Error(t, err)
}

func TestJWTService_RejectsOtherAlgorithms(t *testing.T) {
	svc, _ := newClockedService(t)

	claims := tokenClaims{
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(svc.now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(svc.accessSecret)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	assert.True(t, errors.Is(err, service.ErrTokenSignature))
}

func TestJWTService_RejectsNonUUIDSubject(t *testing.T) {
	svc, _ := newClockedService(t)

	claims := tokenClaims{
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(svc.now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.accessSecret)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	assert.True(t, errors.Is(err, service.ErrTokenMalformed))
}

func TestNewJWTService_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
	}{
		{name: "missing access secret", mutate: func(cfg *config.Config) { cfg.SecretKey.Access = "" }},
		{name: "missing refresh secret", mutate: func(cfg *config.Config) { cfg.SecretKey.Refresh = "" }},
		{name: "identical secrets", mutate: func(cfg *config.Config) { cfg.SecretKey.Refresh = cfg.SecretKey.Access }},
		{name: "non hmac algorithm", mutate: func(cfg *config.Config) { cfg.Token.Algorithm = "RS256" }},
		{name: "unknown algorithm", mutate: func(cfg *config.Config) { cfg.Token.Algorithm = "nope" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig()
			tt.mutate(cfg)

			svc, err := NewJWTService(cfg)
			assert.Error(t, err)
			assert.Nil(t, svc)
		})
	}
}

func TestNewJWTService_Defaults(t *testing.T) {
	cfg := newTestConfig()
	cfg.Token = nil

	svc, err := NewJWTService(cfg)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, svc.AccessTTL())
	assert.Equal(t, 7*24*time.Hour, svc.RefreshTTL())
}
