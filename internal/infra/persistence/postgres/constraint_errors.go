package postgres

import (
	"leapcode/internal/domain/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// PostgreSQL SQLSTATE codes
const (
	uniqueViolationCode  = "23505"
	notNullViolationCode = "23502"
)

// Unique index names from the users migration
const (
	usersEmailIndex    = "idx_users_email"
	usersUsernameIndex = "idx_users_username"
)

// classifyUniqueViolation maps a users unique index violation to its domain error.
// It returns nil when err is not a recognised unique violation.
func classifyUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		switch pgErr.ConstraintName {
		case usersEmailIndex:
			return repository.ErrDuplicateEmail
		case usersUsernameIndex:
			return repository.ErrDuplicateUsername
		}
	}

	return nil
}

// Helper functions for PostgreSQL error checking
func isUniqueConstraintViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func isNotNullConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == notNullViolationCode
}
