// Package access decides which owners' rows an actor may see or mutate.
//
// All role-to-permission mapping lives here: Resolve for data scope and
// RoleAtLeast for the tiered user-management surface.
package access

import (
	"github.com/erazemk/medstock/internal/apperr"
	"github.com/erazemk/medstock/internal/model"
)

// Actor is the authenticated identity a request runs as.
type Actor struct {
	ID       int64
	Username string
	Role     string
}

// IsPrivileged reports whether role may read and act on other owners' data.
func IsPrivileged(role string) bool {
	switch role {
	case model.RoleAdmin, model.RoleManager, model.RoleWarehouse:
		return true
	}
	return false
}

// Resolve computes the effective owner scope for actor.
//
// requestedOwner is the optional owner the caller asked for. allowReadAll is
// false for mutations, where "all owners" is meaningless and a privileged
// actor without an explicit owner acts on their own rows.
func Resolve(actor *Actor, requestedOwner *int64, allowReadAll bool) (model.Scope, error) {
	if actor == nil || actor.ID == 0 {
		return model.Scope{}, apperr.ErrUnauthenticated
	}

	if IsPrivileged(actor.Role) {
		if requestedOwner != nil {
			return model.OwnerScope(*requestedOwner), nil
		}
		if allowReadAll {
			return model.AllOwners(), nil
		}
		return model.OwnerScope(actor.ID), nil
	}

	if requestedOwner != nil && *requestedOwner != actor.ID {
		return model.Scope{}, apperr.ErrForbidden
	}
	return model.OwnerScope(actor.ID), nil
}

// ResolveOwner is Resolve for mutations: it always yields a single owner.
func ResolveOwner(actor *Actor, requestedOwner *int64) (int64, error) {
	scope, err := Resolve(actor, requestedOwner, false)
	if err != nil {
		return 0, err
	}
	return scope.OwnerID, nil
}

// RoleAtLeast checks if role meets or exceeds the minimum required role.
// Warehouse staff rank with managers for stock work but never administer users.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		model.RoleAdmin:     3,
		model.RoleManager:   2,
		model.RoleWarehouse: 2,
		model.RoleUser:      1,
	}
	return levels[role] > 0 && levels[minimum] > 0 && levels[role] >= levels[minimum]
}
