// Package handler contains the HTTP handlers for the application.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"leapcode/config"
	deliverycontext "leapcode/internal/delivery/context"
	"leapcode/internal/delivery/http/middleware"
	"leapcode/internal/delivery/http/response"
	"leapcode/internal/domain/entity"
	domainerrors "leapcode/internal/domain/errors"
	"leapcode/internal/domain/service"
	"leapcode/internal/errors"
	"leapcode/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// RefreshTokenCookie carries the raw refresh token for browser clients.
const RefreshTokenCookie = "refresh_token"

// tokenPairResponse is the body returned by every flow that mints a session.
type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// accessTokenResponse is the legacy single-token body.
type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type userResponse struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	ProfilePicture string    `json:"profile_picture"`
	IsOAuthAccount bool      `json:"is_oauth_account"`
	IsTeacher      bool      `json:"is_teacher"`
	IsAdmin        bool      `json:"is_admin"`
	IsVerified     bool      `json:"is_verified"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

func newUserResponse(user *entity.User) userResponse {
	return userResponse{
		ID:             user.ID,
		Email:          user.Email,
		Username:       user.Username,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		ProfilePicture: user.ProfilePicture,
		IsOAuthAccount: user.IsOAuthAccount,
		IsTeacher:      user.IsTeacher,
		IsAdmin:        user.IsAdmin,
		IsVerified:     user.IsVerified,
		IsActive:       user.IsActive,
		CreatedAt:      user.CreatedAt,
	}
}

// AuthHandler serves the session endpoints.
type AuthHandler struct {
	uc           usecase.AuthUsecase
	accessTTL    time.Duration
	refreshTTL   time.Duration
	secureCookie bool
	logger       *slog.Logger
}

// AuthHandlerParams holds dependencies for AuthHandler, injected by Fx.
type AuthHandlerParams struct {
	fx.In

	Usecase      usecase.AuthUsecase
	TokenService service.TokenService
	Config       *config.Config
	Logger       *slog.Logger
}

// NewAuthHandler is the constructor for AuthHandler.
func NewAuthHandler(params AuthHandlerParams) *AuthHandler {
	secure := params.Config.Cookie != nil && params.Config.Cookie.Secure

	return &AuthHandler{
		uc:           params.Usecase,
		accessTTL:    params.TokenService.AccessTTL(),
		refreshTTL:   params.TokenService.RefreshTTL(),
		secureCookie: secure,
		logger:       params.Logger,
	}
}

func (h *AuthHandler) log(c echo.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(c.Request().Context(), h.logger)
}

// bindAndValidate decodes JSON or form bodies by Content-Type.
func bindAndValidate(c echo.Context, input any) error {
	if err := c.Bind(input); err != nil {
		return errors.Wrap(domainerrors.ErrValidationFailed, err.Error())
	}

	return c.Validate(input)
}

// Login accepts JSON {email, password} or an OAuth2 password form {username, password}.
func (h *AuthHandler) Login(c echo.Context) error {
	output, err := h.login(c)
	if err != nil {
		return err
	}

	h.setSessionCookies(c, output.Tokens)

	return c.JSON(http.StatusOK, newTokenPairResponse(output.Tokens))
}

// Token is the legacy form login that only returns the access token.
func (h *AuthHandler) Token(c echo.Context) error {
	output, err := h.login(c)
	if err != nil {
		return err
	}

	h.setAccessCookie(c, output.Tokens.AccessToken)

	return c.JSON(http.StatusOK, accessTokenResponse{
		AccessToken: output.Tokens.AccessToken,
		TokenType:   output.Tokens.TokenType,
	})
}

func (h *AuthHandler) login(c echo.Context) (*usecase.TokenOutput, error) {
	input := new(usecase.LoginInput)
	if err := bindAndValidate(c, input); err != nil {
		return nil, err
	}

	output, err := h.uc.Login(c.Request().Context(), input)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return output, nil
}

// Signup registers a password account and starts its session.
func (h *AuthHandler) Signup(c echo.Context) error {
	input := new(usecase.SignupInput)
	if err := bindAndValidate(c, input); err != nil {
		return err
	}

	output, err := h.uc.Signup(c.Request().Context(), input)
	if err != nil {
		return errors.WithStack(err)
	}

	h.setSessionCookies(c, output.Tokens)

	return c.JSON(http.StatusCreated, newTokenPairResponse(output.Tokens))
}

// Refresh exchanges a refresh token from the body, or the refresh_token cookie, for a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	input := new(usecase.RefreshInput)
	if c.Request().ContentLength != 0 {
		if err := c.Bind(input); err != nil {
			return errors.Wrap(domainerrors.ErrValidationFailed, err.Error())
		}
	}
	if input.RefreshToken == "" {
		if cookie, err := c.Cookie(RefreshTokenCookie); err == nil {
			input.RefreshToken = cookie.Value
		}
	}
	if input.RefreshToken == "" {
		return errors.Wrap(domainerrors.ErrRefreshTokenInvalid, "refresh token missing")
	}

	output, err := h.uc.Refresh(c.Request().Context(), input)
	if err != nil {
		return errors.WithStack(err)
	}

	h.setSessionCookies(c, output.Tokens)

	return c.JSON(http.StatusOK, newTokenPairResponse(output.Tokens))
}

// GoogleAuth returns the Google consent URL.
func (h *AuthHandler) GoogleAuth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"url": h.uc.GoogleAuthURL()})
}

// GoogleCallback completes the code flow and redirects the browser to the frontend.
func (h *AuthHandler) GoogleCallback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		h.log(c).Warn("OAuth callback without code", slog.String("error", c.QueryParam("error")))

		return errors.Wrap(domainerrors.ErrOAuthCodeMissing, "missing code query parameter")
	}

	output, err := h.uc.OAuthCallback(c.Request().Context(), &usecase.OAuthCallbackInput{Code: code})
	if err != nil {
		return errors.WithStack(err)
	}

	h.setSessionCookies(c, output.Tokens)

	return c.Redirect(http.StatusTemporaryRedirect, output.RedirectURL)
}

// Me returns the profile of the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	userID, ok := deliverycontext.GetUserID(c)
	if !ok {
		return errors.Wrap(domainerrors.ErrUnauthorized, "no authenticated subject")
	}

	user, err := h.uc.CurrentUser(c.Request().Context(), userID)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, newUserResponse(user), "")
}

func newTokenPairResponse(tokens *entity.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.TokenType,
	}
}

func (h *AuthHandler) setSessionCookies(c echo.Context, tokens *entity.TokenPair) {
	h.setAccessCookie(c, tokens.AccessToken)
	c.SetCookie(h.cookie(RefreshTokenCookie, tokens.RefreshToken, h.refreshTTL))
}

func (h *AuthHandler) setAccessCookie(c echo.Context, accessToken string) {
	c.SetCookie(h.cookie(middleware.AccessTokenCookie, "Bearer "+accessToken, h.accessTTL))
}

func (h *AuthHandler) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

// HealthCheck is a simple handler to check if the service is up.
func HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
