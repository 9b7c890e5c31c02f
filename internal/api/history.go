package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/medstock/internal/store"
)

// HistoryHandler handles the activity feed.
type HistoryHandler struct {
	DB *sqlx.DB
}

// List handles GET /api/history.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := readScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	records, err := store.ListHistory(r.Context(), h.DB, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(records))
}

// Delete handles DELETE /api/history/{id}.
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, err := rowOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := store.DeleteHistory(r.Context(), h.DB, id, owner); err != nil {
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "history.delete", "history_record", id, "")
	jsonResponse(w, http.StatusOK, map[string]string{"message": "history record deleted"})
}

// DeleteAll handles DELETE /api/history/all. Case records go with it.
func (h *HistoryHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	owner, err := writeOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	n, err := store.DeleteAllHistory(r.Context(), h.DB, owner)
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "history.delete_all", "user", formatID(owner), fmt.Sprintf("%d records", n))
	jsonResponse(w, http.StatusOK, map[string]int64{"deleted": n})
}
