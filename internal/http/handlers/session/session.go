// Package session обработчики выхода и профиля текущего пользователя.
package session

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/hackstore/internal/http/middlewarectx"
	"github.com/magabrotheeeer/hackstore/internal/http/response"
	"github.com/magabrotheeeer/hackstore/internal/lib/jwt"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/models"
)

// Service операции над текущей сессией.
type Service interface {
	Logout(ctx context.Context, claims *jwt.CustomClaims) error
	CurrentUser(ctx context.Context, userID string) (*models.User, error)
}

// Handler обработчики /api/auth/logout и /api/me.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт обработчик.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// Logout godoc
// @Summary Выход
// @Description Отзывает текущий токен до истечения его срока.
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Router /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session.Logout"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	claims, ok := middlewarectx.ClaimsFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error("unauthorized"))
		return
	}
	if err := h.service.Logout(r.Context(), claims); err != nil {
		log.Error("logout failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	log.Info("user logged out", slog.String("user_id", claims.UserID))
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"loggedOut": true}))
}

// Me godoc
// @Summary Текущий пользователь
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session.Me"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	claims, ok := middlewarectx.ClaimsFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error("unauthorized"))
		return
	}
	user, err := h.service.CurrentUser(r.Context(), claims.UserID)
	if err != nil {
		log.Error("failed to load current user", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"user": user}))
}
