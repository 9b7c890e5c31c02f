package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/medstock/internal/apperr"
	"github.com/erazemk/medstock/internal/db"
	"github.com/erazemk/medstock/internal/model"
)

const userColumns = `id, username, password_hash, full_name, role, created_at, deleted_at`

// ErrUsernameTaken is returned when an active user already has the username.
var ErrUsernameTaken = fmt.Errorf("username already exists: %w", apperr.ErrValidation)

// CreateUser creates a new user.
func CreateUser(ctx context.Context, q sqlx.ExtContext, username, fullName, passwordHash, role string) (*model.User, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO users (username, full_name, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		username, fullName, passwordHash, role, now(),
	)
	if db.IsUniqueViolation(err) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, q, id)
}

// GetUser returns a user by ID, including soft-deleted users.
func GetUser(ctx context.Context, q sqlx.QueryerContext, id int64) (*model.User, error) {
	var u model.User
	found, err := getOne(ctx, q, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &u, nil
}

// GetUserByUsername returns the active user with the given username.
func GetUserByUsername(ctx context.Context, q sqlx.QueryerContext, username string) (*model.User, error) {
	var u model.User
	found, err := getOne(ctx, q, &u,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`, username)
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &u, nil
}

// requireActiveUser loads an active user or fails with apperr.ErrNotFound.
func requireActiveUser(ctx context.Context, q sqlx.QueryerContext, id int64, label string) (*model.User, error) {
	u, err := GetUser(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if !u.Active() {
		return nil, fmt.Errorf("%s %d: %w", label, id, apperr.ErrNotFound)
	}
	return u, nil
}

// ListUsers returns all non-deleted users.
func ListUsers(ctx context.Context, q sqlx.QueryerContext) ([]model.User, error) {
	var users []model.User
	err := sqlx.SelectContext(ctx, q, &users,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// ListUserDirectory returns the public view of all active users.
func ListUserDirectory(ctx context.Context, q sqlx.QueryerContext) ([]model.UserSummary, error) {
	var users []model.UserSummary
	err := sqlx.SelectContext(ctx, q, &users,
		`SELECT id, username, full_name FROM users WHERE deleted_at IS NULL ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("listing user directory: %w", err)
	}
	return users, nil
}

// UpdateUser updates a user's display name and role.
func UpdateUser(ctx context.Context, q sqlx.ExtContext, id int64, fullName, role string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET full_name = ?, role = ? WHERE id = ? AND deleted_at IS NULL`,
		fullName, role, id,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, q sqlx.ExtContext, id int64, passwordHash string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

// DeleteUser soft-deletes a user. Stock and history rows are kept.
func DeleteUser(ctx context.Context, q sqlx.ExtContext, id int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now(), id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}
