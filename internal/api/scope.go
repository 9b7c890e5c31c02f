package api

import (
	"net/http"

	"github.com/erazemk/medstock/internal/access"
	"github.com/erazemk/medstock/internal/model"
)

// readScope resolves which owners a read request may see.
func readScope(r *http.Request) (model.Scope, error) {
	owner, err := ownerParam(r)
	if err != nil {
		return model.Scope{}, err
	}
	return access.Resolve(GetActor(r.Context()), owner, true)
}

// writeOwner resolves the single owner a mutation acts on.
func writeOwner(r *http.Request) (int64, error) {
	owner, err := ownerParam(r)
	if err != nil {
		return 0, err
	}
	return access.ResolveOwner(GetActor(r.Context()), owner)
}

// rowOwner resolves the ownership constraint for an operation on a row
// addressed by id. It returns nil when the actor may act on any owner's row.
func rowOwner(r *http.Request) (*int64, error) {
	scope, err := readScope(r)
	if err != nil {
		return nil, err
	}
	if scope.All {
		return nil, nil
	}
	return &scope.OwnerID, nil
}
