package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/medstock/internal/apperr"
	"github.com/erazemk/medstock/internal/store"
)

// maxBodyBytes limits request bodies; bulk imports are the largest.
const maxBodyBytes = 4 << 20

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
	// Shortage details for insufficient-quantity failures.
	Available *int `json:"available,omitempty"`
	Requested *int `json:"requested,omitempty"`
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorResponse{Error: message})
}

// writeError maps err to an HTTP status. Errors that are not caused by the
// request are logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *apperr.ValidationError
		iq   *apperr.InsufficientQuantityError
	)
	switch {
	case errors.As(err, &verr):
		jsonResponse(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: verr.Fields})
	case errors.As(err, &iq):
		jsonResponse(w, http.StatusUnprocessableEntity, errorResponse{
			Error:     iq.Error(),
			Available: &iq.Available,
			Requested: &iq.Requested,
		})
	case errors.Is(err, apperr.ErrUnauthenticated):
		jsonError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, apperr.ErrForbidden):
		jsonError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, apperr.ErrNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperr.ErrDuplicateItem), errors.Is(err, apperr.ErrAlreadyProcessed):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apperr.ErrInsufficientQuantity):
		jsonError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, apperr.ErrInvalidType), errors.Is(err, apperr.ErrValidation):
		jsonError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(target); err != nil {
		return apperr.NewValidation("body", "invalid request body")
	}
	return nil
}

// ownerParam parses the optional userId query parameter.
func ownerParam(r *http.Request) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("userId"))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, apperr.NewValidation("userId", "invalid user id")
	}
	return &id, nil
}

// idList parses a comma-separated list of positive ids.
func idList(raw, field string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, apperr.NewValidation(field, fmt.Sprintf("invalid id %q", part))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// audit records a successful mutation. Failures are logged, never returned:
// the mutation has already committed.
func audit(r *http.Request, db sqlx.ExtContext, action, entityName, entityID, details string) {
	username := ""
	if actor := GetActor(r.Context()); actor != nil {
		username = actor.Username
	}
	if err := store.LogAudit(r.Context(), db, username, action, entityName, entityID, details); err != nil {
		slog.Warn("writing audit log", "action", action, "error", err)
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// pathID parses the {id} URL parameter as a user id.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.NewValidation("id", "invalid id")
	}
	return id, nil
}
