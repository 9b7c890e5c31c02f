package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/medstock/internal/model"
	"github.com/erazemk/medstock/internal/store"
)

func TestGeneratePassword(t *testing.T) {
	a, err := generatePassword(16)
	require.NoError(t, err)
	b, err := generatePassword(16)
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}

func TestInitDatabaseCreatesAdmin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medstock.sqlite3")

	database, password, err := initDatabase(context.Background(), path, "root")
	require.NoError(t, err)
	defer database.Close()

	admin, err := store.GetUserByUsername(context.Background(), database, "root")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, model.RoleAdmin, admin.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)))
}
