package user

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-accounts/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/auth"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/web"
)

// Users is what the handler needs from UserService.
type Users interface {
	Register(ctx context.Context, in RegisterInput) (entity.PublicUser, error)
	Get(ctx context.Context, id int64) (entity.PublicUser, error)
	List(ctx context.Context, page, limit int) (entity.Page, error)
}

// Handler exposes HTTP endpoints for user operations.
type Handler struct {
	svc    Users
	logger *zap.SugaredLogger
}

func NewHandler(svc Users, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// UserResponse wraps a single user.
type UserResponse struct {
	User entity.PublicUser `json:"user"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := web.Decode(r, "user.Handler.Register", &in); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	u, err := h.svc.Register(r.Context(), in)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, UserResponse{User: u})
}

// List serves GET /api/users?page=&limit=. Missing values take the defaults.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	const op = "user.Handler.List"
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		web.WriteError(w, h.logger, apperr.Invalid(op, "page must be an integer"))
		return
	}
	limit, err := intParam(q.Get("limit"), DefaultLimit)
	if err != nil {
		web.WriteError(w, h.logger, apperr.Invalid(op, "limit must be an integer"))
		return
	}
	p, err := h.svc.List(r.Context(), page, limit)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, p)
}

// Me returns the caller; it must run behind auth.RequireBearer.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.UserIDFrom(r.Context())
	if !ok {
		web.WriteError(w, h.logger, apperr.E("user.Handler.Me", apperr.Unauthorized))
		return
	}
	h.writeUser(w, r, id)
}

// ByID serves GET /api/users/{id}.
func (h *Handler) ByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		web.WriteError(w, h.logger, apperr.Invalid("user.Handler.ByID", "id must be a positive integer"))
		return
	}
	h.writeUser(w, r, id)
}

func (h *Handler) writeUser(w http.ResponseWriter, r *http.Request, id int64) {
	u, err := h.svc.Get(r.Context(), id)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, UserResponse{User: u})
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
