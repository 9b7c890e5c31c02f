package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/medstock/internal/apperr"
	"github.com/erazemk/medstock/internal/model"
	"github.com/erazemk/medstock/internal/store"
)

// UsersHandler handles user management endpoints (admin only, except the directory).
type UsersHandler struct {
	DB *sqlx.DB
}

type createUserRequest struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	FullName *string `json:"full_name"`
	Role     string  `json:"role"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// Directory handles GET /api/users/directory: the public list of users that
// can receive transfers.
func (h *UsersHandler) Directory(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUserDirectory(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if users == nil {
		users = []model.UserSummary{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	verr := &apperr.ValidationError{}
	if req.Username == "" {
		verr.Add("username", "username is required")
	}
	if !model.ValidRole(req.Role) {
		verr.Add("role", "invalid role")
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		verr.Add("password", err.Error())
	}
	if err := verr.OrNil(); err != nil {
		writeError(w, r, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, req.Username, strings.TrimSpace(req.FullName), string(hash), req.Role)
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			jsonError(w, http.StatusConflict, "username already exists")
			return
		}
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "user.create", "user", formatID(user.ID), user.Username+" ("+user.Role+")")
	slog.Info("user created", "user", GetActor(r.Context()).Username, "new_user", user.Username, "role", user.Role)
	jsonResponse(w, http.StatusCreated, user)
}

func (h *UsersHandler) loadUser(w http.ResponseWriter, r *http.Request) *model.User {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return nil
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return nil
	}
	if !user.Active() {
		jsonError(w, http.StatusNotFound, "user not found")
		return nil
	}
	return user
}

// Get handles GET /api/users/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	if user := h.loadUser(w, r); user != nil {
		jsonResponse(w, http.StatusOK, user)
	}
}

// Update handles PUT /api/users/{id}.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := h.loadUser(w, r)
	if user == nil {
		return
	}

	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if req.Role == "" {
		req.Role = user.Role
	}
	if !model.ValidRole(req.Role) {
		writeError(w, r, apperr.NewValidation("role", "invalid role"))
		return
	}

	// An admin cannot demote themselves and lock everyone out.
	actor := GetActor(r.Context())
	if actor.ID == user.ID && req.Role != model.RoleAdmin {
		jsonError(w, http.StatusBadRequest, "cannot change your own role")
		return
	}

	fullName := user.FullName
	if req.FullName != nil {
		fullName = strings.TrimSpace(*req.FullName)
	}

	if err := store.UpdateUser(r.Context(), h.DB, user.ID, fullName, req.Role); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := store.GetUser(r.Context(), h.DB, user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "user.update", "user", formatID(user.ID), user.Username+" role="+req.Role)
	slog.Info("user updated", "user", actor.Username, "target_user", user.Username, "new_role", req.Role)
	jsonResponse(w, http.StatusOK, updated)
}

// ResetPassword handles PUT /api/users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	user := h.loadUser(w, r)
	if user == nil {
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := model.ValidatePassword(req.Password); err != nil {
		writeError(w, r, apperr.NewValidation("password", err.Error()))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.UpdateUserPassword(r.Context(), h.DB, user.ID, string(hash)); err != nil {
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "user.password_reset", "user", formatID(user.ID), user.Username)
	slog.Info("user password reset", "user", GetActor(r.Context()).Username, "target_user", user.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := h.loadUser(w, r)
	if user == nil {
		return
	}

	actor := GetActor(r.Context())
	if actor.ID == user.ID {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	if err := store.DeleteUser(r.Context(), h.DB, user.ID); err != nil {
		writeError(w, r, err)
		return
	}

	audit(r, h.DB, "user.delete", "user", formatID(user.ID), user.Username)
	slog.Info("user deleted", "user", actor.Username, "deleted_user", user.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}
