package postgres

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"leapcode/internal/domain/entity"
	"leapcode/internal/domain/repository"
	"leapcode/internal/infra/persistence/migrations"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	pgLib "github.com/slighter12/go-lib/database/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

// newMigratedDB connects to the Postgres named by LEAPCODE_TEST_POSTGRES_* and applies the migrations.
func newMigratedDB(t *testing.T) *gorm.DB {
	t.Helper()

	host := os.Getenv("LEAPCODE_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("Skipping Postgres test: LEAPCODE_TEST_POSTGRES_HOST env var not set")
	}

	db, err := pgLib.New(&pgLib.DBConn{
		Master: pgLib.ConnectionConfig{
			Host:     host,
			Port:     envOrDefault("LEAPCODE_TEST_POSTGRES_PORT", "5432"),
			UserName: envOrDefault("LEAPCODE_TEST_POSTGRES_USER", "leapcode"),
			Password: envOrDefault("LEAPCODE_TEST_POSTGRES_PASSWORD", "leapcode"),
		},
		Database: envOrDefault("LEAPCODE_TEST_POSTGRES_DB", "leapcode_test"),
	})
	require.NoError(t, err)
	db = db.Session(&gorm.Session{SkipDefaultTransaction: true, Logger: gormlogger.Discard})

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrations.Up(context.Background(), sqlDB, slog.New(slog.NewTextHandler(io.Discard, nil))))

	return db
}

// uniqueUser returns a user whose email and username do not collide with other test runs.
func uniqueUser(prefix string) *entity.User {
	suffix := uuid.NewString()[:8]

	return &entity.User{
		Email:        prefix + "-" + suffix + "@example.com",
		Username:     prefix + "_" + suffix,
		PasswordHash: "$2a$10$hash",
		FirstName:    "Ada",
		IsActive:     true,
	}
}

func TestUserRepository_Postgres_CreateFindUpdate(t *testing.T) {
	db := newMigratedDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := uniqueUser("ada")
	require.NoError(t, repo.Create(ctx, user))
	require.NotEqual(t, uuid.Nil, user.ID)

	byEmail, err := repo.FindByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
	assert.Equal(t, "$2a$10$hash", byEmail.PasswordHash)

	byUsername, err := repo.FindByUsername(ctx, user.Username)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byUsername.ID)

	byEmail.IsOAuthAccount = true
	byEmail.OAuthProvider = entity.OAuthProviderGoogle
	byEmail.OAuthID = "sub-1"
	byEmail.OAuthToken = []byte(`{"access_token":"ya29"}`)
	byEmail.ProfilePicture = "profile_images/" + user.ID.String() + ".png"
	byEmail.ProfilePictureSource = "https://lh3.example.com/ada.png"
	require.NoError(t, repo.Update(ctx, byEmail))

	stored, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsOAuthAccount)
	assert.Equal(t, "sub-1", stored.OAuthID)
	assert.JSONEq(t, `{"access_token":"ya29"}`, string(stored.OAuthToken))
	assert.Equal(t, byEmail.ProfilePicture, stored.ProfilePicture)
	assert.Equal(t, "https://lh3.example.com/ada.png", stored.ProfilePictureSource)
	assert.Equal(t, "$2a$10$hash", stored.PasswordHash, "update keeps the password hash")
	assert.True(t, byUsername.CreatedAt.Equal(stored.CreatedAt), "update never touches created_at")

	ghost := uniqueUser("ghost")
	ghost.ID = uuid.New()
	assert.ErrorIs(t, repo.Update(ctx, ghost), repository.ErrUserNotFound)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestUserRepository_Postgres_UniqueIndexes(t *testing.T) {
	db := newMigratedDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := uniqueUser("grace")
	require.NoError(t, repo.Create(ctx, user))

	sameEmail := uniqueUser("other")
	sameEmail.Email = user.Email
	assert.ErrorIs(t, repo.Create(ctx, sameEmail), repository.ErrDuplicateEmail)

	sameUsername := uniqueUser("other")
	sameUsername.Username = user.Username
	assert.ErrorIs(t, repo.Create(ctx, sameUsername), repository.ErrDuplicateUsername)
}

func TestUserRepository_Postgres_ConcurrentCreateSameEmail(t *testing.T) {
	db := newMigratedDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	const writers = 8
	email := uniqueUser("race").Email

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := uniqueUser("race")
			user.Email = email

			err := repo.Create(ctx, user)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, repository.ErrDuplicateEmail):
				duplicates++
			default:
				t.Errorf("unexpected create error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, writers-1, duplicates)
}

func TestTransactionManager_Postgres(t *testing.T) {
	db := newMigratedDB(t)
	tm := NewTransactionManager(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	repo := NewUserRepository(db)
	ctx := context.Background()

	t.Run("error rolls back", func(t *testing.T) {
		user := uniqueUser("rollback")
		boom := errors.New("boom")

		err := tm.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
			if err := repoFactory.UserRepo().Create(ctx, user); err != nil {
				return err
			}

			return boom
		})

		assert.ErrorIs(t, err, boom)
		_, err = repo.FindByEmail(ctx, user.Email)
		assert.ErrorIs(t, err, repository.ErrUserNotFound)
	})

	t.Run("success commits", func(t *testing.T) {
		user := uniqueUser("commit")

		err := tm.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
			return repoFactory.UserRepo().Create(ctx, user)
		})

		require.NoError(t, err)
		found, err := repo.FindByEmail(ctx, user.Email)
		require.NoError(t, err)
		assert.Equal(t, user.ID, found.ID)
	})
}
