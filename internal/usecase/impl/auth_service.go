package impl

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"leapcode/config"
	deliverycontext "leapcode/internal/delivery/context"
	"leapcode/internal/domain/entity"
	domainerrors "leapcode/internal/domain/errors"
	"leapcode/internal/domain/repository"
	"leapcode/internal/domain/service"
	"leapcode/internal/errors"
	"leapcode/internal/usecase"

	"github.com/google/uuid"
	"go.uber.org/fx"
)

// Flow labels reported to AuthMetrics.
const (
	flowLogin   = "login"
	flowSignup  = "signup"
	flowRefresh = "refresh"
	flowOAuth   = "oauth"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

const usernameSuffixLength = 8

// timingPassword is hashed once and compared against when no real hash exists.
const timingPassword = "leapcode-timing-equalizer"

type authService struct {
	txManager    repository.TransactionManager
	userRepo     repository.UserRepository
	hasher       service.PasswordHasher
	tokenService service.TokenService
	oauth        service.OAuthExchanger
	avatarCache  service.AvatarCache
	metrics      service.AuthMetrics
	frontend     *config.FrontendConfig
	logger       *slog.Logger

	timingHashOnce sync.Once
	timingHash     string
}

// AuthServiceParams holds dependencies for AuthService, injected by Fx.
type AuthServiceParams struct {
	fx.In

	TxManager    repository.TransactionManager
	UserRepo     repository.UserRepository
	Hasher       service.PasswordHasher
	TokenService service.TokenService
	OAuth        service.OAuthExchanger
	AvatarCache  service.AvatarCache
	Metrics      service.AuthMetrics
	Config       *config.Config
	Logger       *slog.Logger
}

// NewAuthService is the constructor for authService.
func NewAuthService(params AuthServiceParams) usecase.AuthUsecase {
	frontend := params.Config.Frontend
	if frontend == nil {
		frontend = &config.FrontendConfig{}
	}

	return &authService{
		txManager:    params.TxManager,
		userRepo:     params.UserRepo,
		hasher:       params.Hasher,
		tokenService: params.TokenService,
		oauth:        params.OAuth,
		avatarCache:  params.AvatarCache,
		metrics:      params.Metrics,
		frontend:     frontend,
		logger:       params.Logger,
	}
}

func (srv *authService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

func (srv *authService) record(flow string, err error) {
	if srv.metrics == nil {
		return
	}

	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	srv.metrics.RecordAuthAttempt(flow, outcome)
}

// Login verifies a password and mints a fresh token pair.
// Unknown email, wrong password, OAuth-only accounts and inactive accounts fail identically.
func (srv *authService) Login(ctx context.Context, input *usecase.LoginInput) (out *usecase.TokenOutput, err error) {
	defer func() { srv.record(flowLogin, err) }()

	srv.log(ctx).Debug("Starting user login", slog.String("email", input.Email))

	user, err := srv.loadUserByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			srv.passwordMatches(nil, input.Password)
			srv.log(ctx).Warn("Login failed", slog.String("email", input.Email), slog.String("reason", "unknown email"))

			return nil, errors.Wrap(domainerrors.ErrInvalidCredentials, "login failed")
		}

		return nil, errors.Wrap(err, "failed to load login user from primary")
	}

	// bcrypt is CPU-bound, so the comparison stays outside the transaction.
	if !srv.passwordMatches(user, input.Password) {
		srv.log(ctx).Warn("Login failed", slog.String("email", input.Email), slog.String("reason", "password mismatch"))

		return nil, errors.Wrap(domainerrors.ErrInvalidCredentials, "login failed")
	}

	if !user.IsActive {
		srv.log(ctx).Warn("Login failed", slog.Any("userID", user.ID), slog.String("reason", "inactive"))

		return nil, errors.Wrap(domainerrors.ErrInvalidCredentials, "login failed")
	}

	tokens, err := srv.tokenService.GenerateTokens(user.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate tokens")
	}

	srv.log(ctx).Debug("User logged in successfully", slog.Any("userID", user.ID))

	return &usecase.TokenOutput{Tokens: tokens, User: user}, nil
}

func (srv *authService) loadUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	var user *entity.User

	// Read from primary in a short transaction to avoid stale reads on replicas.
	if err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		var findErr error
		user, findErr = repoFactory.UserRepo().FindByEmail(ctx, email)

		return findErr
	}); err != nil {
		return nil, errors.Wrap(err, "failed to execute user lookup transaction")
	}

	return user, nil
}

// passwordMatches compares against the user's hash, or against a fixed hash when there is none,
// so every failed login pays one bcrypt comparison.
func (srv *authService) passwordMatches(user *entity.User, password string) bool {
	if user == nil || !user.HasPassword() {
		srv.hasher.Check(password, srv.timingPasswordHash())

		return false
	}

	return srv.hasher.Check(password, user.PasswordHash)
}

func (srv *authService) timingPasswordHash() string {
	srv.timingHashOnce.Do(func() {
		hash, err := srv.hasher.Hash(timingPassword)
		if err != nil {
			srv.logger.Warn("Failed to prepare timing hash", slog.Any("error", err))

			return
		}
		srv.timingHash = hash
	})

	return srv.timingHash
}

// Signup creates a password account and mints its first token pair.
func (srv *authService) Signup(ctx context.Context, input *usecase.SignupInput) (out *usecase.TokenOutput, err error) {
	defer func() { srv.record(flowSignup, err) }()

	username := input.Username
	if username == "" {
		username = entity.DefaultUsername(input.Email)
	}

	srv.log(ctx).Debug("Starting signup", slog.String("email", input.Email), slog.String("username", username))

	var created *entity.User
	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		if err := ensureAbsent(userRepo.FindByEmail(ctx, input.Email)); err != nil {
			if errors.Is(err, errAlreadyPresent) {
				return errors.Wrap(domainerrors.ErrEmailTaken, "signup rejected")
			}

			return errors.Wrap(err, "failed to check email availability")
		}

		if err := ensureAbsent(userRepo.FindByUsername(ctx, username)); err != nil {
			if errors.Is(err, errAlreadyPresent) {
				return errors.Wrap(domainerrors.ErrUsernameTaken, "signup rejected")
			}

			return errors.Wrap(err, "failed to check username availability")
		}

		hash, err := srv.hasher.Hash(input.Password)
		if err != nil {
			srv.log(ctx).Error("Failed to hash password during signup", slog.Any("error", err))

			return errors.Wrap(domainerrors.ErrPasswordHashFailed, err.Error())
		}

		newUser := &entity.User{
			Email:          input.Email,
			Username:       username,
			PasswordHash:   hash,
			FirstName:      input.FirstName,
			LastName:       input.LastName,
			ProfilePicture: input.ProfilePicture,
			IsActive:       true,
		}

		if err := userRepo.Create(ctx, newUser); err != nil {
			return errors.Wrap(translateDuplicate(err), "failed to create user during signup")
		}
		created = newUser

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Signup failed", slog.String("email", input.Email), slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to execute signup transaction")
	}

	tokens, err := srv.tokenService.GenerateTokens(created.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate tokens")
	}

	srv.log(ctx).Info("User signed up", slog.Any("userID", created.ID))

	return &usecase.TokenOutput{Tokens: tokens, User: created}, nil
}

// Refresh mints a new pair from a valid refresh token. The old pair is superseded, not revoked.
func (srv *authService) Refresh(ctx context.Context, input *usecase.RefreshInput) (out *usecase.TokenOutput, err error) {
	defer func() { srv.record(flowRefresh, err) }()

	claims, err := srv.tokenService.ValidateRefreshToken(input.RefreshToken)
	if err != nil {
		srv.log(ctx).Warn("Refresh token rejected", slog.Any("error", err))

		return nil, errors.Wrap(domainerrors.ErrRefreshTokenInvalid, err.Error())
	}

	user, err := srv.loadUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			srv.log(ctx).Warn("Refresh token subject not found", slog.Any("userID", claims.Subject))

			return nil, errors.Wrap(domainerrors.ErrRefreshTokenInvalid, "subject not found")
		}

		return nil, errors.Wrap(err, "failed to load refresh subject")
	}

	if !user.IsActive {
		srv.log(ctx).Warn("Refresh token subject inactive", slog.Any("userID", user.ID))

		return nil, errors.Wrap(domainerrors.ErrRefreshTokenInvalid, "subject inactive")
	}

	tokens, err := srv.tokenService.GenerateTokens(user.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate tokens")
	}

	return &usecase.TokenOutput{Tokens: tokens, User: user}, nil
}

func (srv *authService) loadUserByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	var user *entity.User

	if err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		var findErr error
		user, findErr = repoFactory.UserRepo().FindByID(ctx, id)

		return findErr
	}); err != nil {
		return nil, errors.Wrap(err, "failed to execute user lookup transaction")
	}

	return user, nil
}

// GoogleAuthURL returns the provider consent URL.
func (srv *authService) GoogleAuthURL() string {
	return srv.oauth.AuthCodeURL()
}

// OAuthCallback exchanges the code, reconciles the account by email and mints a token pair.
func (srv *authService) OAuthCallback(ctx context.Context, input *usecase.OAuthCallbackInput) (out *usecase.OAuthCallbackOutput, err error) {
	defer func() { srv.record(flowOAuth, err) }()

	if input.Code == "" {
		return nil, errors.Wrap(domainerrors.ErrOAuthCodeMissing, "oauth callback without code")
	}

	token, err := srv.oauth.Exchange(ctx, input.Code)
	if err != nil {
		srv.log(ctx).Warn("OAuth code exchange failed", slog.Any("error", err))

		return nil, errors.Wrap(domainerrors.ErrOAuthExchangeFailed, err.Error())
	}

	profile, err := srv.oauth.FetchProfile(ctx, token)
	if err != nil {
		srv.log(ctx).Warn("OAuth profile fetch failed", slog.Any("error", err))

		return nil, errors.Wrap(domainerrors.ErrOAuthProfileFetchFailed, err.Error())
	}

	var (
		user           *entity.User
		pictureWritten bool
	)
	reconcile := func(repoFactory repository.RepositoryFactory) error {
		var reconcileErr error
		user, pictureWritten, reconcileErr = srv.reconcileOAuthUser(ctx, repoFactory.UserRepo(), profile, token.Blob)

		return reconcileErr
	}
	err = srv.txManager.Execute(ctx, reconcile)
	if isDuplicate(err) {
		// A concurrent first login created the row; the second pass links to it.
		srv.log(ctx).Info("OAuth account created concurrently, reconciling again", slog.String("email", profile.Email))
		err = srv.txManager.Execute(ctx, reconcile)
	}
	if err != nil {
		err = translateDuplicate(err)
		srv.log(ctx).Error("Failed to reconcile OAuth account", slog.String("email", profile.Email), slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to execute oauth reconciliation transaction")
	}

	if !user.IsActive {
		srv.log(ctx).Warn("OAuth login for inactive account", slog.Any("userID", user.ID))

		return nil, errors.Wrap(domainerrors.ErrInvalidCredentials, "account inactive")
	}

	if pictureWritten && user.HasRemotePicture() {
		srv.cacheAvatar(ctx, user)
	}

	tokens, err := srv.tokenService.GenerateTokens(user.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate tokens")
	}

	srv.log(ctx).Info("OAuth login completed", slog.Any("userID", user.ID))

	return &usecase.OAuthCallbackOutput{
		Tokens:      tokens,
		RedirectURL: srv.callbackRedirect(tokens),
		User:        user,
	}, nil
}

// reconcileOAuthUser performs exactly one Create or Update and reports whether the picture changed.
func (srv *authService) reconcileOAuthUser(
	ctx context.Context,
	userRepo repository.UserRepository,
	profile *service.OAuthProfile,
	blob []byte,
) (*entity.User, bool, error) {
	existing, err := userRepo.FindByEmail(ctx, profile.Email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, false, errors.Wrap(err, "failed to find user by email")
	}

	if existing == nil {
		newUser, err := srv.createOAuthUser(ctx, userRepo, profile, blob)
		if err != nil {
			return nil, false, err
		}

		return newUser, newUser.ProfilePicture != "", nil
	}

	pictureWritten := false
	if existing.IsOAuthAccount {
		if profile.Picture != "" && profile.Picture != existing.PictureSource() {
			existing.ProfilePicture = profile.Picture
			existing.ProfilePictureSource = profile.Picture
			pictureWritten = true
		}
	} else {
		existing.IsOAuthAccount = true
		existing.OAuthProvider = entity.OAuthProviderGoogle
		existing.OAuthID = profile.ID
		if existing.ProfilePicture == "" && profile.Picture != "" {
			existing.ProfilePicture = profile.Picture
			existing.ProfilePictureSource = profile.Picture
			pictureWritten = true
		}
		srv.log(ctx).Info("Linking existing account to Google", slog.Any("userID", existing.ID))
	}
	existing.OAuthToken = blob

	if err := userRepo.Update(ctx, existing); err != nil {
		return nil, false, errors.Wrap(err, "failed to update oauth user")
	}

	return existing, pictureWritten, nil
}

func (srv *authService) createOAuthUser(
	ctx context.Context,
	userRepo repository.UserRepository,
	profile *service.OAuthProfile,
	blob []byte,
) (*entity.User, error) {
	username := entity.DefaultUsername(profile.Email)

	if err := ensureAbsent(userRepo.FindByUsername(ctx, username)); err != nil {
		if !errors.Is(err, errAlreadyPresent) {
			return nil, errors.Wrap(err, "failed to check username availability")
		}
		username = username + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:usernameSuffixLength]
	}

	newUser := &entity.User{
		Email:                profile.Email,
		Username:             username,
		FirstName:            profile.GivenName,
		LastName:             profile.FamilyName,
		ProfilePicture:       profile.Picture,
		ProfilePictureSource: profile.Picture,
		IsOAuthAccount:       true,
		OAuthProvider:        entity.OAuthProviderGoogle,
		OAuthID:              profile.ID,
		OAuthToken:           blob,
		IsActive:             true,
	}

	if err := userRepo.Create(ctx, newUser); err != nil {
		return nil, errors.Wrap(err, "failed to create oauth user")
	}

	srv.log(ctx).Info("Created account from Google profile", slog.Any("userID", newUser.ID))

	return newUser, nil
}

// cacheAvatar stores the remote picture locally. Failures never fail the login.
func (srv *authService) cacheAvatar(ctx context.Context, user *entity.User) {
	if srv.avatarCache == nil {
		return
	}

	path, err := srv.avatarCache.Cache(ctx, user.ID, user.ProfilePicture)
	if err != nil {
		if errors.Is(err, service.ErrAvatarCacheDisabled) {
			srv.log(ctx).Debug("Avatar caching disabled, keeping remote picture", slog.Any("userID", user.ID))

			return
		}
		srv.log(ctx).Warn("Failed to cache profile picture", slog.Any("userID", user.ID), slog.Any("error", err))

		return
	}

	updated := *user
	updated.ProfilePicture = path
	if err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		return repoFactory.UserRepo().Update(ctx, &updated)
	}); err != nil {
		srv.log(ctx).Warn("Failed to persist cached profile picture", slog.Any("userID", user.ID), slog.Any("error", err))

		return
	}
	user.ProfilePicture = path
}

func (srv *authService) callbackRedirect(tokens *entity.TokenPair) string {
	query := url.Values{}
	query.Set("token", tokens.AccessToken)
	query.Set("refresh_token", tokens.RefreshToken)

	return strings.TrimRight(srv.frontend.Origin, "/") + srv.frontend.CallbackPath + "?" + query.Encode()
}

// CurrentUser returns the profile for an authenticated subject.
func (srv *authService) CurrentUser(ctx context.Context, userID uuid.UUID) (*entity.User, error) {
	user, err := srv.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, errors.Wrap(domainerrors.ErrUnauthorized, "subject not found")
		}

		return nil, errors.Wrap(err, "failed to load current user")
	}

	if !user.IsActive {
		return nil, errors.Wrap(domainerrors.ErrUnauthorized, "subject inactive")
	}

	return user, nil
}

var errAlreadyPresent = errors.New("record already present")

// ensureAbsent turns a lookup result into nil when nothing was found.
func ensureAbsent(found *entity.User, err error) error {
	if err == nil && found != nil {
		return errAlreadyPresent
	}
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil
	}

	return err
}

// translateDuplicate maps store-level unique violations to the signup conflict errors.
func isDuplicate(err error) bool {
	return errors.Is(err, repository.ErrDuplicateEmail) || errors.Is(err, repository.ErrDuplicateUsername)
}

func translateDuplicate(err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicateEmail):
		return domainerrors.ErrEmailTaken
	case errors.Is(err, repository.ErrDuplicateUsername):
		return domainerrors.ErrUsernameTaken
	default:
		return err
	}
}
