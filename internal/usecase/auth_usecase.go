package usecase

import (
	"context"

	"leapcode/internal/domain/entity"

	"github.com/google/uuid"
)

// --- Input DTOs ---

// LoginInput carries the password login credentials.
type LoginInput struct {
	Email    string `json:"email" form:"username" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required,max=72"`
}

// SignupInput carries a new password account. Username defaults to the email local part.
type SignupInput struct {
	Email          string `json:"email" validate:"required,email"`
	Username       string `json:"username" validate:"omitempty,min=3,max=50"`
	Password       string `json:"password" validate:"required,min=8,max=72"`
	FirstName      string `json:"first_name" validate:"omitempty,max=100"`
	LastName       string `json:"last_name" validate:"omitempty,max=100"`
	ProfilePicture string `json:"profile_picture" validate:"omitempty,max=512"`
}

type RefreshInput struct {
	RefreshToken string `json:"refresh_token"`
}

type OAuthCallbackInput struct {
	Code string
}

// --- Output DTOs ---

// TokenOutput is returned by every flow that mints a session.
type TokenOutput struct {
	Tokens *entity.TokenPair
	User   *entity.User
}

// OAuthCallbackOutput adds the frontend redirect target carrying both tokens.
type OAuthCallbackOutput struct {
	Tokens      *entity.TokenPair
	RedirectURL string
	User        *entity.User
}

// AuthUsecase defines the session lifecycle flows.
type AuthUsecase interface {
	Login(ctx context.Context, input *LoginInput) (*TokenOutput, error)
	Signup(ctx context.Context, input *SignupInput) (*TokenOutput, error)
	Refresh(ctx context.Context, input *RefreshInput) (*TokenOutput, error)
	GoogleAuthURL() string
	OAuthCallback(ctx context.Context, input *OAuthCallbackInput) (*OAuthCallbackOutput, error)
	CurrentUser(ctx context.Context, userID uuid.UUID) (*entity.User, error)
}
