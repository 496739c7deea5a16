package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"leapcode/config"
	deliverycontext "leapcode/internal/delivery/context"
	"leapcode/internal/delivery/http/middleware"
	"leapcode/internal/delivery/http/validator"
	"leapcode/internal/domain/entity"
	domainerrors "leapcode/internal/domain/errors"
	"leapcode/internal/domain/service"
	"leapcode/internal/errors"
	"leapcode/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthUsecase struct {
	loginInput   *usecase.LoginInput
	signupInput  *usecase.SignupInput
	refreshInput *usecase.RefreshInput
	callbackCode string

	user *entity.User
	err  error
}

func (f *fakeAuthUsecase) tokens() *entity.TokenPair {
	return &entity.TokenPair{AccessToken: "acc", RefreshToken: "ref", TokenType: entity.TokenTypeBearer}
}

func (f *fakeAuthUsecase) Login(_ context.Context, input *usecase.LoginInput) (*usecase.TokenOutput, error) {
	f.loginInput = input
	if f.err != nil {
		return nil, f.err
	}

	return &usecase.TokenOutput{Tokens: f.tokens(), User: f.user}, nil
}

func (f *fakeAuthUsecase) Signup(_ context.Context, input *usecase.SignupInput) (*usecase.TokenOutput, error) {
	f.signupInput = input
	if f.err != nil {
		return nil, f.err
	}

	return &usecase.TokenOutput{Tokens: f.tokens(), User: f.user}, nil
}

func (f *fakeAuthUsecase) Refresh(_ context.Context, input *usecase.RefreshInput) (*usecase.TokenOutput, error) {
	f.refreshInput = input
	if f.err != nil {
		return nil, f.err
	}

	return &usecase.TokenOutput{Tokens: f.tokens(), User: f.user}, nil
}

func (f *fakeAuthUsecase) GoogleAuthURL() string {
	return "https://accounts.google.com/o/oauth2/auth?client_id=abc"
}

func (f *fakeAuthUsecase) OAuthCallback(_ context.Context, input *usecase.OAuthCallbackInput) (*usecase.OAuthCallbackOutput, error) {
	f.callbackCode = input.Code
	if f.err != nil {
		return nil, f.err
	}

	return &usecase.OAuthCallbackOutput{
		Tokens:      f.tokens(),
		RedirectURL: "http://localhost:5173/auth/callback?refresh_token=ref&token=acc",
		User:        f.user,
	}, nil
}

func (f *fakeAuthUsecase) CurrentUser(_ context.Context, userID uuid.UUID) (*entity.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.user == nil || f.user.ID != userID {
		return nil, domainerrors.ErrUnauthorized
	}

	return f.user, nil
}

type ttlTokenService struct {
	service.TokenService
}

func (ttlTokenService) AccessTTL() time.Duration  { return 5 * time.Minute }
func (ttlTokenService) RefreshTTL() time.Duration { return 7 * 24 * time.Hour }

func newHandlerEcho(uc usecase.AuthUsecase) (*echo.Echo, *AuthHandler) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewAuthHandler(AuthHandlerParams{
		Usecase:      uc,
		TokenService: ttlTokenService{},
		Config:       &config.Config{Cookie: &config.CookieConfig{Secure: true}},
		Logger:       logger,
	})

	e := echo.New()
	e.Validator = validator.New()
	e.HTTPErrorHandler = middleware.NewErrorMiddleware(logger).HandleHTTPError
	e.POST("/login", h.Login)
	e.POST("/token", h.Token)
	e.POST("/signup", h.Signup)
	e.POST("/refresh", h.Refresh)
	e.GET("/google/auth", h.GoogleAuth)
	e.GET("/google/callback", h.GoogleCallback)
	e.GET("/health", HealthCheck)

	return e, h
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	return req
}

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	cookies := make(map[string]*http.Cookie)
	for _, ck := range rec.Result().Cookies() {
		cookies[ck.Name] = ck
	}

	return cookies
}

func TestAuthHandler_LoginJSON(t *testing.T) {
	uc := &fakeAuthUsecase{}
	e, _ := newHandlerEcho(uc)

	rec := serve(e, jsonRequest(http.MethodPost, "/login", `{"email":"ada@example.com","password":"pw"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"access_token":"acc","refresh_token":"ref","token_type":"bearer"}`, rec.Body.String())
	assert.Equal(t, "ada@example.com", uc.loginInput.Email)

	cookies := cookiesByName(rec)
	require.Contains(t, cookies, middleware.AccessTokenCookie)
	require.Contains(t, cookies, RefreshTokenCookie)

	access := cookies[middleware.AccessTokenCookie]
	assert.Equal(t, "Bearer acc", access.Value)
	assert.Equal(t, 300, access.MaxAge)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.Equal(t, "/", access.Path)

	refresh := cookies[RefreshTokenCookie]
	assert.Equal(t, "ref", refresh.Value)
	assert.Equal(t, 7*24*3600, refresh.MaxAge)
}

func TestAuthHandler_LoginForm(t *testing.T) {
	uc := &fakeAuthUsecase{}
	e, _ := newHandlerEcho(uc)

	form := url.Values{"username": {"ada@example.com"}, "password": {"pw"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)

	rec := serve(e, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada@example.com", uc.loginInput.Email)
	assert.Equal(t, "pw", uc.loginInput.Password)
}

func TestAuthHandler_LegacyToken(t *testing.T) {
	e, _ := newHandlerEcho(&fakeAuthUsecase{})

	form := url.Values{"username": {"ada@example.com"}, "password": {"pw"}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)

	rec := serve(e, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"access_token":"acc","token_type":"bearer"}`, rec.Body.String())
	cookies := cookiesByName(rec)
	assert.Contains(t, cookies, middleware.AccessTokenCookie)
	assert.NotContains(t, cookies, RefreshTokenCookie)
}

func TestAuthHandler_LoginFailure(t *testing.T) {
	uc := &fakeAuthUsecase{err: errors.Wrap(domainerrors.ErrInvalidCredentials, "login failed")}
	e, _ := newHandlerEcho(uc)

	rec := serve(e, jsonRequest(http.MethodPost, "/login", `{"email":"ada@example.com","password":"nope"}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get(echo.HeaderWWWAuthenticate))
	assert.Contains(t, rec.Body.String(), "INVALID_CREDENTIALS")
	assert.Empty(t, rec.Result().Cookies())
}

func TestAuthHandler_LoginValidation(t *testing.T) {
	uc := &fakeAuthUsecase{}
	e, _ := newHandlerEcho(uc)

	rec := serve(e, jsonRequest(http.MethodPost, "/login", `{"email":"not-an-email","password":""}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_FAILED")
	assert.Nil(t, uc.loginInput)
}

func TestAuthHandler_Signup(t *testing.T) {
	uc := &fakeAuthUsecase{}
	e, _ := newHandlerEcho(uc)

	rec := serve(e, jsonRequest(http.MethodPost, "/signup",
		`{"email":"grace@example.com","username":"grace","password":"compiler!","first_name":"Grace"}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"access_token":"acc","refresh_token":"ref","token_type":"bearer"}`, rec.Body.String())
	assert.Equal(t, "grace", uc.signupInput.Username)
	assert.Equal(t, "Grace", uc.signupInput.FirstName)
}

func TestAuthHandler_SignupConflict(t *testing.T) {
	uc := &fakeAuthUsecase{err: errors.Wrap(domainerrors.ErrEmailTaken, "signup rejected")}
	e, _ := newHandlerEcho(uc)

	rec := serve(e, jsonRequest(http.MethodPost, "/signup", `{"email":"grace@example.com","password":"compiler!"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Email already registered")
}

func TestAuthHandler_Refresh(t *testing.T) {
	t.Run("body token", func(t *testing.T) {
		uc := &fakeAuthUsecase{}
		e, _ := newHandlerEcho(uc)

		rec := serve(e, jsonRequest(http.MethodPost, "/refresh", `{"refresh_token":"ref-1"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ref-1", uc.refreshInput.RefreshToken)
		assert.Contains(t, cookiesByName(rec), RefreshTokenCookie)
	})

	t.Run("cookie token", func(t *testing.T) {
		uc := &fakeAuthUsecase{}
		e, _ := newHandlerEcho(uc)

		req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
		req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: "ref-2"})
		rec := serve(e, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ref-2", uc.refreshInput.RefreshToken)
	})

	t.Run("missing token", func(t *testing.T) {
		uc := &fakeAuthUsecase{}
		e, _ := newHandlerEcho(uc)

		rec := serve(e, httptest.NewRequest(http.MethodPost, "/refresh", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "REFRESH_TOKEN_INVALID")
		assert.Nil(t, uc.refreshInput)
	})
}

func TestAuthHandler_GoogleAuth(t *testing.T) {
	e, _ := newHandlerEcho(&fakeAuthUsecase{})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/google/auth", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://accounts.google.com/o/oauth2/auth?client_id=abc", body["url"])
}

func TestAuthHandler_GoogleCallback(t *testing.T) {
	t.Run("redirects with cookies", func(t *testing.T) {
		uc := &fakeAuthUsecase{}
		e, _ := newHandlerEcho(uc)

		rec := serve(e, httptest.NewRequest(http.MethodGet, "/google/callback?code=abc", nil))

		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		assert.Equal(t, "http://localhost:5173/auth/callback?refresh_token=ref&token=acc", rec.Header().Get(echo.HeaderLocation))
		assert.Equal(t, "abc", uc.callbackCode)
		assert.Len(t, rec.Result().Cookies(), 2)
	})

	t.Run("missing code", func(t *testing.T) {
		uc := &fakeAuthUsecase{}
		e, _ := newHandlerEcho(uc)

		rec := serve(e, httptest.NewRequest(http.MethodGet, "/google/callback?error=access_denied", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Missing authorization code")
		assert.Empty(t, uc.callbackCode)
	})

	t.Run("exchange failure", func(t *testing.T) {
		uc := &fakeAuthUsecase{err: errors.Wrap(domainerrors.ErrOAuthExchangeFailed, "oauth2: invalid_grant")}
		e, _ := newHandlerEcho(uc)

		rec := serve(e, httptest.NewRequest(http.MethodGet, "/google/callback?code=bad", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Failed to retrieve Google token")
		assert.NotContains(t, rec.Body.String(), "invalid_grant")
	})
}

func TestAuthHandler_Me(t *testing.T) {
	user := &entity.User{ID: uuid.New(), Email: "ada@example.com", Username: "ada", IsActive: true}
	e, h := newHandlerEcho(&fakeAuthUsecase{user: user})
	e.GET("/me", h.Me, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			deliverycontext.SetUserID(c, user.ID)

			return next(c)
		}
	})
	e.GET("/me-anonymous", h.Me)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			ID       uuid.UUID `json:"id"`
			Username string    `json:"username"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, user.ID, body.Data.ID)
	assert.Equal(t, "ada", body.Data.Username)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/me-anonymous", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	e, _ := newHandlerEcho(&fakeAuthUsecase{})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
