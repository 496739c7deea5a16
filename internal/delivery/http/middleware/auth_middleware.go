package middleware

import (
	"log/slog"
	"strings"

	deliverycontext "leapcode/internal/delivery/context"
	domainerrors "leapcode/internal/domain/errors"
	"leapcode/internal/domain/service"
	"leapcode/internal/errors"

	"github.com/labstack/echo/v4"
)

// AccessTokenCookie is the cookie that mirrors the Authorization header for browser clients.
const AccessTokenCookie = "access_token"

const bearerPrefix = "Bearer "

// AuthMiddleware provides middleware for JWT authentication.
type AuthMiddleware struct {
	tokenSvc service.TokenService
	logger   *slog.Logger
}

// NewAuthMiddleware is the constructor for AuthMiddleware.
func NewAuthMiddleware(tokenSvc service.TokenService, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{tokenSvc: tokenSvc, logger: logger}
}

// Authenticate requires a valid access token and stores its subject on the context.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenString, ok := bearerToken(c)
		if !ok {
			return errors.Wrap(domainerrors.ErrUnauthorized, "access token missing")
		}

		claims, err := m.tokenSvc.ValidateAccessToken(tokenString)
		if err != nil {
			deliverycontext.GetLoggerOrDefault(c.Request().Context(), m.logger).
				Debug("Access token rejected", slog.Any("error", err))

			return errors.Wrap(domainerrors.ErrUnauthorized, err.Error())
		}

		deliverycontext.SetUserID(c, claims.Subject)

		return next(c)
	}
}

// bearerToken reads "Bearer <token>" from the Authorization header, then from the access_token cookie.
func bearerToken(c echo.Context) (string, bool) {
	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		token, found := strings.CutPrefix(header, bearerPrefix)
		if !found || token == "" {
			return "", false
		}

		return token, true
	}

	cookie, err := c.Cookie(AccessTokenCookie)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	token := strings.TrimPrefix(cookie.Value, bearerPrefix)

	return token, token != ""
}
