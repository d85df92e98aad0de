package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"go-auth-core/internal/model"
	"go-auth-core/internal/service"
	"go-auth-core/pkg/apierror"
)

// AdminUserStore is the slice of the user repository the admin surface needs.
type AdminUserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	List(ctx context.Context) ([]model.AuthUser, error)
	Count(ctx context.Context) (int, error)
	SetActive(ctx context.Context, userID string, active bool) error
}

type UserHandler struct {
	users AdminUserStore
	audit *service.AuditService
}

func NewUserHandler(users AdminUserStore, audit *service.AuditService) *UserHandler {
	return &UserHandler{users: users, audit: audit}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"users": users}, nil)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, apierror.BadRequest("user id is required"))
		return
	}

	user, err := h.users.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user.Public(), nil)
}

// SetActive flips the account lifecycle switch. Deactivation is the terminal
// gate of the login state machine, so both directions are audited.
func (h *UserHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, apierror.BadRequest("user id is required"))
		return
	}

	var payload model.SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.BadRequest("invalid JSON body"))
		return
	}

	if err := h.users.SetActive(r.Context(), id, payload.Active); err != nil {
		writeError(w, err)
		return
	}

	event := "user_deactivated"
	if payload.Active {
		event = "user_activated"
	}

	h.audit.Record(model.AuditEntry{
		Event:  event,
		Actor:  actorFromRequest(r),
		Reason: "target user " + id,
	})

	writeSuccess(w, http.StatusOK, map[string]any{"id": id, "is_active": payload.Active}, nil)
}
