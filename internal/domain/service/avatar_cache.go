package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// AvatarCache copies a remote profile picture into local storage.
type AvatarCache interface {
	// Cache downloads sourceURL and stores it for userID, returning the stored path.
	Cache(ctx context.Context, userID uuid.UUID, sourceURL string) (string, error)
}

// ErrAvatarCacheDisabled is returned by the cache when avatar caching is switched off.
var ErrAvatarCacheDisabled = errors.New("avatar cache disabled")
