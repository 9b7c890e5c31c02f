package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/medstock/internal/apperr"
	"github.com/erazemk/medstock/internal/model"
)

func ptr(v int64) *int64 { return &v }

func TestResolve(t *testing.T) {
	tests := []struct {
		name         string
		role         string
		requested    *int64
		allowReadAll bool
		want         model.Scope
		wantErr      error
	}{
		{"admin no owner read", model.RoleAdmin, nil, true, model.AllOwners(), nil},
		{"admin no owner write", model.RoleAdmin, nil, false, model.OwnerScope(1), nil},
		{"admin other owner", model.RoleAdmin, ptr(2), true, model.OwnerScope(2), nil},
		{"admin other owner write", model.RoleAdmin, ptr(2), false, model.OwnerScope(2), nil},
		{"manager no owner read", model.RoleManager, nil, true, model.AllOwners(), nil},
		{"warehouse other owner", model.RoleWarehouse, ptr(5), true, model.OwnerScope(5), nil},
		{"warehouse no owner write", model.RoleWarehouse, nil, false, model.OwnerScope(1), nil},
		{"user no owner read", model.RoleUser, nil, true, model.OwnerScope(1), nil},
		{"user self", model.RoleUser, ptr(1), true, model.OwnerScope(1), nil},
		{"user other read", model.RoleUser, ptr(2), true, model.Scope{}, apperr.ErrForbidden},
		{"user other write", model.RoleUser, ptr(2), false, model.Scope{}, apperr.ErrForbidden},
		{"unknown role other", "guest", ptr(2), true, model.Scope{}, apperr.ErrForbidden},
		{"unknown role self", "guest", nil, true, model.OwnerScope(1), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := &Actor{ID: 1, Username: "a", Role: tt.role}
			got, err := Resolve(actor, tt.requested, tt.allowReadAll)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveUnauthenticated(t *testing.T) {
	_, err := Resolve(nil, nil, true)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = Resolve(&Actor{Role: model.RoleAdmin}, nil, true)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestResolveNonPrivilegedNeverSeesOthers(t *testing.T) {
	actor := &Actor{ID: 42, Role: model.RoleUser}
	for other := int64(1); other <= 100; other++ {
		if other == actor.ID {
			continue
		}
		_, err := Resolve(actor, ptr(other), true)
		assert.ErrorIs(t, err, apperr.ErrForbidden, "owner %d", other)
	}
}

func TestResolveOwner(t *testing.T) {
	owner, err := ResolveOwner(&Actor{ID: 3, Role: model.RoleManager}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), owner)

	owner, err = ResolveOwner(&Actor{ID: 3, Role: model.RoleManager}, ptr(9))
	require.NoError(t, err)
	assert.Equal(t, int64(9), owner)

	_, err = ResolveOwner(&Actor{ID: 3, Role: model.RoleUser}, ptr(9))
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestRoleAtLeast(t *testing.T) {
	tests := []struct {
		role     string
		minimum  string
		expected bool
	}{
		{model.RoleAdmin, model.RoleAdmin, true},
		{model.RoleAdmin, model.RoleManager, true},
		{model.RoleAdmin, model.RoleUser, true},
		{model.RoleManager, model.RoleAdmin, false},
		{model.RoleManager, model.RoleManager, true},
		{model.RoleWarehouse, model.RoleManager, true},
		{model.RoleWarehouse, model.RoleAdmin, false},
		{model.RoleUser, model.RoleManager, false},
		{model.RoleUser, model.RoleUser, true},
		// Unknown roles fail-closed.
		{"unknown", model.RoleUser, false},
		{model.RoleAdmin, "unknown", false},
		{"", "", false},
	}

	for _, tt := range tests {
		if got := RoleAtLeast(tt.role, tt.minimum); got != tt.expected {
			t.Errorf("RoleAtLeast(%q, %q) = %v, want %v", tt.role, tt.minimum, got, tt.expected)
		}
	}
}

func TestIsPrivileged(t *testing.T) {
	assert.True(t, IsPrivileged(model.RoleAdmin))
	assert.True(t, IsPrivileged(model.RoleManager))
	assert.True(t, IsPrivileged(model.RoleWarehouse))
	assert.False(t, IsPrivileged(model.RoleUser))
	assert.False(t, IsPrivileged(""))
}
