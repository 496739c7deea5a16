package validator

import (
	"testing"

	domainerrors "leapcode/internal/domain/errors"
	"leapcode/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Nickname string `validate:"omitempty,min=3"`
}

func TestCustomValidator_Validate(t *testing.T) {
	v := New()

	require.NoError(t, v.Validate(&signupRequest{Email: "ada@example.com", Password: "long-enough"}))

	err := v.Validate(&signupRequest{Email: "not-an-email", Password: "short", Nickname: "ab"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrValidationFailed))
	assert.Contains(t, err.Error(), "email:email")
	assert.Contains(t, err.Error(), "password:min")
	assert.Contains(t, err.Error(), "Nickname:min")
}

func TestCustomValidator_RejectsOverlongPassword(t *testing.T) {
	v := New()

	long := make([]byte, 73)
	for i := range long {
		long[i] = 'a'
	}

	err := v.Validate(&signupRequest{Email: "ada@example.com", Password: string(long)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password:max")
}
