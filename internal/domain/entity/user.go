// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OAuthProviderGoogle is the only external identity provider currently linked to accounts.
const OAuthProviderGoogle = "google"

// User is the core entity in the system, representing a unique "person" or "account".
// A user may hold a password hash, an OAuth link, or both.
type User struct {
	ID             uuid.UUID // The Global Unique Identifier (GUID) for the user.
	Email          string    // Unique login identifier.
	Username       string    // Unique handle, defaults to the local part of the email.
	PasswordHash   string    // bcrypt hash. Empty when the account has no password.
	FirstName      string
	LastName       string
	ProfilePicture string // Remote URL or locally cached avatar path.

	// ProfilePictureSource is the provider URL ProfilePicture was taken from. It survives avatar caching.
	ProfilePictureSource string

	IsOAuthAccount bool   // True once the account is linked to an external provider.
	OAuthProvider  string // e.g. "google".
	OAuthID        string // The provider's subject identifier.
	OAuthToken     []byte // Opaque provider token blob, consumed by the classroom integration.

	IsTeacher  bool
	IsAdmin    bool
	IsVerified bool
	IsActive   bool

	CreatedAt time.Time // Timestamp of when this user account was created.
	UpdatedAt time.Time // Timestamp of the last modification to this user's data.
}

// HasPassword reports whether the user can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// CanAuthenticate reports whether the user holds at least one credential.
func (u *User) CanAuthenticate() bool {
	return u.HasPassword() || u.IsOAuthAccount
}

// HasRemotePicture reports whether the profile picture still points at a remote URL.
func (u *User) HasRemotePicture() bool {
	return strings.HasPrefix(u.ProfilePicture, "http://") || strings.HasPrefix(u.ProfilePicture, "https://")
}

// PictureSource returns the provider URL behind the current picture.
// Rows written before the source was tracked fall back to ProfilePicture.
func (u *User) PictureSource() string {
	if u.ProfilePictureSource != "" {
		return u.ProfilePictureSource
	}

	return u.ProfilePicture
}

// DefaultUsername returns the local part of an email address.
func DefaultUsername(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found {
		return email
	}

	return local
}
