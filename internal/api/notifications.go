package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/medstock/internal/access"
	"github.com/erazemk/medstock/internal/apperr"
	"github.com/erazemk/medstock/internal/model"
	"github.com/erazemk/medstock/internal/store"
)

// NotificationsHandler handles the notification inbox and transfer decisions.
type NotificationsHandler struct {
	DB *sqlx.DB
}

type actionRequest struct {
	Action string `json:"action"`
}

type unreadResponse struct {
	Count         int                  `json:"count"`
	Notifications []model.Notification `json:"notifications"`
}

// List handles GET /api/notifications.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	receiver, err := writeOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, err := store.ListNotifications(r.Context(), h.DB, receiver)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(list))
}

// Unread handles GET /api/notifications/unread.
func (h *NotificationsHandler) Unread(w http.ResponseWriter, r *http.Request) {
	receiver, err := writeOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, err := store.ListUnreadNotifications(r.Context(), h.DB, receiver)
	if err != nil {
		writeError(w, r, err)
		return
	}
	count, err := store.UnreadCount(r.Context(), h.DB, receiver)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, unreadResponse{Count: count, Notifications: orEmpty(list)})
}

// loadForReceiver loads the {id} notification and checks that the actor may
// act as its receiver.
func (h *NotificationsHandler) loadForReceiver(r *http.Request) (*model.Notification, error) {
	id := chi.URLParam(r, "id")
	n, err := store.GetNotification(r.Context(), h.DB, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, apperr.ErrNotFound
	}
	if _, err := access.Resolve(GetActor(r.Context()), &n.ReceiverID, false); err != nil {
		return nil, err
	}
	return n, nil
}

// MarkRead handles PUT /api/notifications/{id}/read.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.loadForReceiver(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.MarkNotificationRead(r.Context(), h.DB, n.ID); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := store.GetNotification(r.Context(), h.DB, n.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, updated)
}

// Action handles POST /api/notifications/{id}/action with APPROVED or REJECTED.
// The sender never decides their own transfer, even when privileged.
func (h *NotificationsHandler) Action(w http.ResponseWriter, r *http.Request) {
	n, err := h.loadForReceiver(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if n.SenderID != nil && *n.SenderID == GetActor(r.Context()).ID {
		writeError(w, r, apperr.ErrForbidden)
		return
	}

	var req actionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	processed, err := store.ProcessTransfer(r.Context(), h.DB, n.ID, req.Action)
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "transfer."+req.Action, "notification", n.ID, "")
	jsonResponse(w, http.StatusOK, processed)
}

// Lines handles GET /api/notifications/{id}/lines. Both parties of the
// transfer may read its lines.
func (h *NotificationsHandler) Lines(w http.ResponseWriter, r *http.Request) {
	n, err := store.GetNotification(r.Context(), h.DB, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if n == nil {
		writeError(w, r, apperr.ErrNotFound)
		return
	}

	actor := GetActor(r.Context())
	if n.SenderID == nil || *n.SenderID != actor.ID {
		if _, err := access.Resolve(actor, &n.ReceiverID, false); err != nil {
			writeError(w, r, err)
			return
		}
	}

	lines, err := store.ListTransferLines(r.Context(), h.DB, n.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, orEmpty(lines))
}
