package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/medstock/internal/apperr"
	"github.com/erazemk/medstock/internal/db"
	"github.com/erazemk/medstock/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "testuser", "Test User", "hash123", model.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, "testuser", user.Username)
	assert.Equal(t, "Test User", user.FullName)
	assert.Equal(t, model.RoleUser, user.Role)

	got, err := GetUser(ctx, database, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "testuser", got.Username)
	assert.True(t, got.Active())
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	_, err := CreateUser(ctx, database, "alice", "", "hash", model.RoleUser)
	require.NoError(t, err)

	_, err = CreateUser(ctx, database, "alice", "", "hash", model.RoleUser)
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestGetUserByUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	_, err := CreateUser(ctx, database, "alice", "", "hash", model.RoleAdmin)
	require.NoError(t, err)

	user, err := GetUserByUsername(ctx, database, "alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)

	missing, err := GetUserByUsername(ctx, database, "bob")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListUsersAndDirectory(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	mustUser(t, database, "b", model.RoleManager)
	mustUser(t, database, "a", model.RoleWarehouse)

	users, err := ListUsers(ctx, database)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	dir, err := ListUserDirectory(ctx, database)
	require.NoError(t, err)
	require.Len(t, dir, 2)
	assert.Equal(t, "a", dir[0].Username)
}

func TestDeleteUserIsSoft(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user := mustUser(t, database, "deleteme", model.RoleUser)
	require.NoError(t, DeleteUser(ctx, database, user.ID))

	users, err := ListUsers(ctx, database)
	require.NoError(t, err)
	assert.Empty(t, users)

	got, err := GetUser(ctx, database, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Active())

	// The username is free again.
	_, err = CreateUser(ctx, database, "deleteme", "", "hash", model.RoleUser)
	assert.NoError(t, err)
}

func TestUpdateUserAndPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user := mustUser(t, database, "pwuser", model.RoleUser)
	require.NoError(t, UpdateUserPassword(ctx, database, user.ID, "newhash"))
	require.NoError(t, UpdateUser(ctx, database, user.ID, "Pw User", model.RoleWarehouse))

	got, err := GetUser(ctx, database, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "newhash", got.PasswordHash)
	assert.Equal(t, "Pw User", got.FullName)
	assert.Equal(t, model.RoleWarehouse, got.Role)
}
