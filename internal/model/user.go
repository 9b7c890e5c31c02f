package model

import (
	"fmt"
	"time"
)

// User is an authenticated account. Every stock row, history record and case
// belongs to exactly one user.
type User struct {
	ID           int64      `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	PasswordHash string     `json:"-" db:"password_hash"`
	FullName     string     `json:"full_name" db:"full_name"`
	Role         string     `json:"role" db:"role"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Active reports whether the user has not been soft-deleted.
func (u *User) Active() bool {
	return u != nil && u.DeletedAt == nil
}

// Roles.
const (
	RoleAdmin     = "admin"
	RoleManager   = "manager"
	RoleWarehouse = "warehouse"
	RoleUser      = "user"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleWarehouse, RoleUser:
		return true
	}
	return false
}

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// ValidatePassword checks the password policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// UserSummary is the public view of a user used when picking a transfer receiver.
type UserSummary struct {
	ID       int64  `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
	FullName string `json:"full_name" db:"full_name"`
}
