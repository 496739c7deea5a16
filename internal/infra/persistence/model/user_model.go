// Package model holds the GORM persistence models.
package model

import (
	"time"

	"github.com/google/uuid"
)

// UserModel mirrors the 'users' table.
// Uniqueness of email and username is enforced by idx_users_email and idx_users_username.
type UserModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Email          string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_users_email"`
	Username       string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_users_username"`
	HashedPassword *string   `gorm:"type:text"`
	FirstName      string    `gorm:"type:varchar(100)"`
	LastName       string    `gorm:"type:varchar(100)"`
	ProfilePicture string    `gorm:"type:text"`

	ProfilePictureSource string `gorm:"column:profile_picture_source;type:text"`

	IsOAuthAccount bool   `gorm:"column:is_oauth_account;not null;default:false"`
	OAuthProvider  string `gorm:"column:oauth_provider;type:varchar(50)"`
	OAuthID        string `gorm:"column:oauth_id;type:varchar(255)"`
	OAuthToken     []byte `gorm:"column:oauth_token;type:jsonb"`

	IsTeacher  bool `gorm:"not null;default:false"`
	IsAdmin    bool `gorm:"not null;default:false"`
	IsVerified bool `gorm:"not null;default:false"`
	IsActive   bool `gorm:"not null;default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName explicitly sets the table name for GORM.
func (UserModel) TableName() string {
	return "users"
}
