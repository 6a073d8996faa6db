package auth

import (
	"context"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-accounts/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/web"
)

// Sessions is what the handler needs from SessionService.
type Sessions interface {
	Login(ctx context.Context, username, password string) (entity.PublicUser, string, error)
	Logout(ctx context.Context, userID int64) (entity.PublicUser, error)
}

// Handler exposes HTTP endpoints for login and logout.
type Handler struct {
	svc    Sessions
	logger *zap.SugaredLogger
}

func NewHandler(svc Sessions, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// LoginRequest login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// LoginResponse carries the user and a bearer token.
type LoginResponse struct {
	User  entity.PublicUser `json:"user"`
	Token string            `json:"token"`
}

// LogoutResponse carries the user after the session flag was cleared.
type LogoutResponse struct {
	User entity.PublicUser `json:"user"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	const op = "auth.Handler.Login"

	var req LoginRequest
	if err := web.Decode(r, op, &req); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	if err := req.Validate(); err != nil {
		web.WriteError(w, h.logger, apperr.Invalid(op, err.Error()))
		return
	}
	u, tok, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, LoginResponse{User: u, Token: tok})
}

// Logout must run behind RequireBearer; the user id comes from the token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := UserIDFrom(r.Context())
	if !ok {
		web.WriteError(w, h.logger, apperr.E("auth.Handler.Logout", apperr.Unauthorized))
		return
	}
	u, err := h.svc.Logout(r.Context(), id)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, LogoutResponse{User: u})
}
