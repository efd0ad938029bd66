// Package users HTTP-обработчики администрирования пользователей.
package users

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/hackstore/internal/http/middlewarectx"
	"github.com/magabrotheeeer/hackstore/internal/http/response"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/models"
	usersvc "github.com/magabrotheeeer/hackstore/internal/services/users"
)

// Service админские операции над пользователями.
type Service interface {
	List(ctx context.Context) ([]models.User, error)
	Get(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, id, adminID string, upd usersvc.Update) (*models.User, error)
	Delete(ctx context.Context, id, adminID string) error
}

// UpdateRequest тело PUT /api/admin/users/{id}. Отсутствующие поля не меняются,
// currentPackage: null снимает пакет, balance принимает число или строку.
type UpdateRequest struct {
	Name           *string         `json:"name" validate:"omitempty,max=100"`
	Role           *string         `json:"role" validate:"omitempty,oneof=user admin"`
	IsActive       *bool           `json:"isActive"`
	Balance        json.RawMessage `json:"balance" swaggertype:"number"`
	CurrentPackage json.RawMessage `json:"currentPackage" swaggertype:"string"`
}

// Handler обработчики /api/admin/users.
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

// List godoc
// @Summary Все пользователи
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /admin/users [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.List"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	list, err := h.service.List(r.Context())
	if err != nil {
		log.Error("failed to list users", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"users": list}))
}

// Get godoc
// @Summary Пользователь по ID
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID пользователя"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/users/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.Get"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	u, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		log.Info("user lookup failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"user": u}))
}

// Update godoc
// @Summary Изменить пользователя
// @Description Имя, роль, активность, баланс и текущий пакет. Баланс приводится к неотрицательному числу.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID пользователя"
// @Param request body UpdateRequest true "Изменяемые поля"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /admin/users/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.Update"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	claims, ok := middlewarectx.ClaimsFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error("unauthorized"))
		return
	}
	var req UpdateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		response.JSON(w, r, http.StatusBadRequest, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.JSON(w, r, http.StatusUnprocessableEntity, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}
	upd, err := req.toUpdate()
	if err != nil {
		response.JSON(w, r, http.StatusBadRequest, response.Error("invalid currentPackage"))
		return
	}

	id := chi.URLParam(r, "id")
	u, err := h.service.Update(r.Context(), id, claims.UserID, upd)
	if err != nil {
		log.Error("failed to update user", slog.String("user_id", id), sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"user": u}))
}

func (req UpdateRequest) toUpdate() (usersvc.Update, error) {
	upd := usersvc.Update{Name: req.Name, IsActive: req.IsActive}
	if req.Role != nil {
		role := models.Role(*req.Role)
		upd.Role = &role
	}
	if len(req.Balance) > 0 {
		var v any
		if err := json.Unmarshal(req.Balance, &v); err != nil {
			return upd, err
		}
		if v == nil {
			v = 0.0
		}
		upd.Balance = v
	}
	if len(req.CurrentPackage) > 0 {
		var pkg *string
		if err := json.Unmarshal(req.CurrentPackage, &pkg); err != nil {
			return upd, err
		}
		if pkg == nil || *pkg == "" {
			upd.ClearPackage = true
		} else {
			upd.CurrentPackage = pkg
		}
	}
	return upd, nil
}

// Delete godoc
// @Summary Удалить пользователя
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID пользователя"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.ErrorResponse "Нельзя удалить себя"
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/users/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.Delete"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	claims, ok := middlewarectx.ClaimsFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error("unauthorized"))
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id, claims.UserID); err != nil {
		log.Info("delete failed", slog.String("user_id", id), sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"deleted": id}))
}
