package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/medstock/internal/model"
	"github.com/erazemk/medstock/internal/store"
)

// CasesHandler handles procedure case records.
type CasesHandler struct {
	DB *sqlx.DB
}

// List handles GET /api/cases.
func (h *CasesHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := readScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	cases, err := store.ListCases(r.Context(), h.DB, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(cases))
}

// Create handles POST /api/cases. The case's materials are deducted from
// the owner's stock.
func (h *CasesHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, err := writeOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var c model.CaseRecord
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := store.CreateCase(r.Context(), h.DB, owner, c)
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "case.create", "case", created.ID,
		fmt.Sprintf("%s, %d materials", created.HospitalName, len(created.Materials)))
	jsonResponse(w, http.StatusCreated, created)
}

// Get handles GET /api/cases/{id}.
func (h *CasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner, err := rowOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := store.GetCase(r.Context(), h.DB, chi.URLParam(r, "id"), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

// Delete handles DELETE /api/cases/{id}.
func (h *CasesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, err := rowOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := store.DeleteCase(r.Context(), h.DB, id, owner); err != nil {
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "case.delete", "case", id, "")
	jsonResponse(w, http.StatusOK, map[string]string{"message": "case deleted"})
}
