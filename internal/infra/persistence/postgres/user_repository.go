package postgres

import (
	"context"

	"leapcode/internal/domain/entity"
	domainerrors "leapcode/internal/domain/errors"
	"leapcode/internal/domain/repository"
	"leapcode/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

// userRepository implements the domain.UserRepository interface using GORM.
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository is the constructor for userRepository.
// It returns the repository as a domain.UserRepository interface, adhering to dependency inversion.
func NewUserRepository(db *gorm.DB) repository.UserRepository {
	return &userRepository{db: db}
}

// FindByID retrieves a single user by their unique ID.
func (repo *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	return repo.findOne(ctx, "failed to find user by id", "id = ?", id)
}

// FindByEmail retrieves a single user by their email address.
func (repo *userRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return repo.findOne(ctx, "failed to find user by email", "email = ?", email)
}

// FindByUsername retrieves a single user by their username.
func (repo *userRepository) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	return repo.findOne(ctx, "failed to find user by username", "username = ?", username)
}

// findOne reads from the primary so a login right after signup sees the new row.
func (repo *userRepository) findOne(ctx context.Context, failure string, query string, args ...any) (*entity.User, error) {
	var userM model.UserModel
	err := repo.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Where(query, args...).
		First(&userM).Error
	if err != nil {
		// If the error is 'record not found', return a domain-specific error.
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}

		return nil, domainerrors.NewDatabaseExecuteError(err, failure)
	}

	// Map the persistence model back to a pure domain entity before returning.
	return toUserDomain(&userM), nil
}

// Create persists a new user entity to the database.
func (repo *userRepository) Create(ctx context.Context, user *entity.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	// Map the pure domain entity to a GORM persistence model.
	userM := fromUserDomain(user)

	if err := repo.db.WithContext(ctx).Create(userM).Error; err != nil {
		return translateWriteError(err, "failed to create user")
	}

	// Update the user entity with the generated timestamps
	user.CreatedAt = userM.CreatedAt
	user.UpdatedAt = userM.UpdatedAt

	return nil
}

// Update writes every mutable column of user in a single statement.
func (repo *userRepository) Update(ctx context.Context, user *entity.User) error {
	userM := fromUserDomain(user)

	result := repo.db.WithContext(ctx).
		Model(&model.UserModel{}).
		Where("id = ?", user.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(userM)
	if result.Error != nil {
		return translateWriteError(result.Error, "failed to update user")
	}
	if result.RowsAffected == 0 {
		return repository.ErrUserNotFound
	}

	user.UpdatedAt = userM.UpdatedAt

	return nil
}

// translateWriteError converts PostgreSQL errors to domain errors
func translateWriteError(err error, failure string) error {
	if dup := classifyUniqueViolation(err); dup != nil {
		return errors.Wrap(dup, failure)
	}
	if isUniqueConstraintViolation(err) {
		return domainerrors.NewDatabaseExecuteError(err, failure+": unique constraint violated")
	}
	if isNotNullConstraintViolation(err) {
		return domainerrors.NewDatabaseExecuteError(err, failure+": missing required user information")
	}

	// For other database errors, return a generic database error
	return domainerrors.NewDatabaseExecuteError(err, failure)
}

// --- Mapper Functions ---
// These helpers convert between domain entities and persistence models.

// toUserDomain converts a GORM UserModel to a domain User entity.
func toUserDomain(data *model.UserModel) *entity.User {
	if data == nil {
		return nil
	}

	user := &entity.User{
		ID:                   data.ID,
		Email:                data.Email,
		Username:             data.Username,
		FirstName:            data.FirstName,
		LastName:             data.LastName,
		ProfilePicture:       data.ProfilePicture,
		ProfilePictureSource: data.ProfilePictureSource,
		IsOAuthAccount:       data.IsOAuthAccount,
		OAuthProvider:        data.OAuthProvider,
		OAuthID:              data.OAuthID,
		OAuthToken:           data.OAuthToken,
		IsTeacher:            data.IsTeacher,
		IsAdmin:              data.IsAdmin,
		IsVerified:           data.IsVerified,
		IsActive:             data.IsActive,
		CreatedAt:            data.CreatedAt,
		UpdatedAt:            data.UpdatedAt,
	}
	if data.HashedPassword != nil {
		user.PasswordHash = *data.HashedPassword
	}

	return user
}

// fromUserDomain converts a domain User entity to a GORM UserModel for persistence.
func fromUserDomain(data *entity.User) *model.UserModel {
	if data == nil {
		return nil
	}

	userM := &model.UserModel{
		ID:                   data.ID,
		Email:                data.Email,
		Username:             data.Username,
		FirstName:            data.FirstName,
		LastName:             data.LastName,
		ProfilePicture:       data.ProfilePicture,
		ProfilePictureSource: data.ProfilePictureSource,
		IsOAuthAccount:       data.IsOAuthAccount,
		OAuthProvider:        data.OAuthProvider,
		OAuthID:              data.OAuthID,
		OAuthToken:           data.OAuthToken,
		IsTeacher:            data.IsTeacher,
		IsAdmin:              data.IsAdmin,
		IsVerified:           data.IsVerified,
		IsActive:             data.IsActive,
		CreatedAt:            data.CreatedAt,
		UpdatedAt:            data.UpdatedAt,
	}
	if data.PasswordHash != "" {
		hash := data.PasswordHash
		userM.HashedPassword = &hash
	}

	return userM
}
