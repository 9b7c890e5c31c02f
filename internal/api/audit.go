package api

import (
	"net/http"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/medstock/internal/apperr"
	"github.com/erazemk/medstock/internal/store"
)

// AuditHandler exposes the audit log to administrators.
type AuditHandler struct {
	DB *sqlx.DB
}

// List handles GET /api/audit?limit=.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, apperr.NewValidation("limit", "invalid limit"))
			return
		}
		limit = n
	}

	logs, err := store.ListAudit(r.Context(), h.DB, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(logs))
}
