// Package login HTTP-обработчик входа по username и паролю.
//
// При успешной аутентификации возвращает JWT, срок его действия и профиль пользователя.
package login

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/hackstore/internal/http/response"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/services"
	"github.com/magabrotheeeer/hackstore/internal/services/auth"
)

// Request учётные данные.
type Request struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required"`
}

// Service вход пользователя.
type Service interface {
	Login(ctx context.Context, username, password string) (*auth.Session, error)
}

// Handler обработчик POST /api/auth/login.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт обработчик.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Авторизация пользователя
// @Description Аутентифицирует пользователя по имени и паролю, возвращает JWT.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "Учетные данные пользователя"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверные учетные данные"
// @Failure 403 {object} response.ErrorResponse "Аккаунт отключён"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /auth/login [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		response.JSON(w, r, http.StatusBadRequest, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Info("validation failed", sl.Err(err))
		response.JSON(w, r, http.StatusUnprocessableEntity, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	session, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) || errors.Is(err, services.ErrUserInactive) {
			log.Info("login rejected", slog.String("username", req.Username), sl.Err(err))
		} else {
			log.Error("login failed", sl.Err(err))
		}
		response.Fail(w, r, err)
		return
	}

	log.Info("login success", slog.String("username", req.Username))
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{
		"token":     session.Token,
		"expiresAt": session.ExpiresAt,
		"user":      session.User,
	}))
}
