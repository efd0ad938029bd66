// Package tickets HTTP-обработчики обращений в поддержку.
package tickets

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/hackstore/internal/http/middlewarectx"
	"github.com/magabrotheeeer/hackstore/internal/http/response"
	"github.com/magabrotheeeer/hackstore/internal/lib/jwt"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/services/ticket"
)

// Service тикеты поддержки.
type Service interface {
	Create(ctx context.Context, userID string, req ticket.CreateRequest) (*models.Ticket, error)
	Get(ctx context.Context, id string, actor ticket.Actor) (*models.Ticket, error)
	Respond(ctx context.Context, id string, actor ticket.Actor, message string) (*models.Ticket, error)
	SetStatus(ctx context.Context, id string, status models.TicketStatus) (*models.Ticket, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Ticket, error)
	List(ctx context.Context, status models.TicketStatus) ([]*models.Ticket, error)
}

// CreateRequest тело нового тикета.
type CreateRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	Message  string `json:"message" validate:"required,max=5000"`
	Priority string `json:"priority" validate:"omitempty,oneof=low medium high"`
}

// RespondRequest тело ответа в переписке.
type RespondRequest struct {
	Message string `json:"message" validate:"required,max=5000"`
}

// StatusRequest тело смены статуса.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open pending resolved closed"`
}

// Handler обработчики тикетов.
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

func actorOf(claims *jwt.CustomClaims) ticket.Actor {
	return ticket.Actor{UserID: claims.UserID, IsAdmin: claims.Role == string(models.RoleAdmin)}
}

// Create godoc
// @Summary Создать тикет
// @Tags Tickets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateRequest true "Обращение"
// @Success 201 {object} response.Response
// @Failure 422 {object} response.ErrorResponse
// @Router /tickets [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.tickets.Create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	claims, ok := middlewarectx.ClaimsFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error("unauthorized"))
		return
	}
	var req CreateRequest
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

	t, err := h.service.Create(r.Context(), claims.UserID, ticket.CreateRequest{
		Title:    req.Title,
		Message:  req.Message,
		Priority: models.TicketPriority(req.Priority),
	})
	if err != nil {
		log.Error("failed to create ticket", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, response.OKWithData(map[string]any{"ticket": t}))
}

// Mine godoc
// @Summary Мои тикеты
// @Tags Tickets
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /tickets [get]
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.tickets.Mine"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	claims, ok := middlewarectx.ClaimsFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error("unauthorized"))
		return
	}
	list, err := h.service.ListForUser(r.Context(), claims.UserID)
	if err != nil {
		log.Error("failed to list tickets", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"tickets": list}))
}

// Get godoc
// @Summary Тикет с перепиской
// @Tags Tickets
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID тикета"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /tickets/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.tickets.Get"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	claims, ok := middlewarectx.ClaimsFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error("unauthorized"))
		return
	}
	t, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), actorOf(claims))
	if err != nil {
		log.Info("ticket lookup failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"ticket": t}))
}

// Respond godoc
// @Summary Ответить в тикет
// @Tags Tickets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID тикета"
// @Param request body RespondRequest true "Сообщение"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "Тикет закрыт"
// @Router /tickets/{id}/responses [post]
func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.tickets.Respond"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	claims, ok := middlewarectx.ClaimsFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error("unauthorized"))
		return
	}
	var req RespondRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		response.JSON(w, r, http.StatusBadRequest, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.JSON(w, r, http.StatusUnprocessableEntity, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	t, err := h.service.Respond(r.Context(), chi.URLParam(r, "id"), actorOf(claims), req.Message)
	if err != nil {
		log.Info("respond failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"ticket": t}))
}

// List godoc
// @Summary Все тикеты
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "open, pending, resolved или closed"
// @Success 200 {object} response.Response
// @Router /admin/tickets [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.tickets.List"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	status := models.TicketStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		response.JSON(w, r, http.StatusBadRequest, response.Error("unknown status"))
		return
	}
	list, err := h.service.List(r.Context(), status)
	if err != nil {
		log.Error("failed to list tickets", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"tickets": list}))
}

// SetStatus godoc
// @Summary Сменить статус тикета
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID тикета"
// @Param request body StatusRequest true "Новый статус"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "Тикет закрыт"
// @Router /admin/tickets/{id}/status [put]
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.tickets.SetStatus"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req StatusRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		response.JSON(w, r, http.StatusBadRequest, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.JSON(w, r, http.StatusUnprocessableEntity, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	t, err := h.service.SetStatus(r.Context(), chi.URLParam(r, "id"), models.TicketStatus(req.Status))
	if err != nil {
		log.Info("status change failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"ticket": t}))
}
