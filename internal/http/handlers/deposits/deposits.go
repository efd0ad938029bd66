// Package deposits HTTP-обработчики заявок на пополнение баланса.
package deposits

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/hackstore/internal/http/middlewarectx"
	"github.com/magabrotheeeer/hackstore/internal/http/request"
	"github.com/magabrotheeeer/hackstore/internal/http/response"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/services/deposit"
)

// Service сценарии пополнения.
type Service interface {
	Create(ctx context.Context, userID string, req deposit.CreateRequest) (*deposit.Created, error)
	Approve(ctx context.Context, depositID, adminID, note string) (*deposit.Approved, error)
	Reject(ctx context.Context, depositID, adminID, note string) (*models.DepositRequest, error)
	ListForUser(ctx context.Context, userID string) ([]*models.DepositRequest, error)
	List(ctx context.Context, status models.DepositStatus) ([]*models.DepositRequest, error)
}

// CreateRequest тело POST /api/deposits/create.
type CreateRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Method      string `json:"method" validate:"max=50"`
	Description string `json:"description" validate:"max=200"`
	BankID      string `json:"bankId" validate:"required"`
}

// DecisionRequest тело подтверждения или отклонения заявки.
type DecisionRequest struct {
	Note string `json:"note" validate:"max=500"`
}

// Handler обработчики заявок.
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

// Create godoc
// @Summary Создать заявку на пополнение
// @Description Возвращает заявку, реквизиты банка и ссылку на QR-код перевода.
// @Tags Deposits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateRequest true "Сумма и банк"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Сумма меньше минимальной или банк недоступен"
// @Failure 401 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /deposits/create [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.deposits.Create"
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

	created, err := h.service.Create(r.Context(), claims.UserID, deposit.CreateRequest{
		Amount:      req.Amount,
		Method:      req.Method,
		Description: req.Description,
		BankID:      req.BankID,
	})
	if err != nil {
		log.Error("failed to create deposit", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("deposit created", slog.String("deposit_id", created.Deposit.ID))
	response.JSON(w, r, http.StatusCreated, response.OKWithData(created))
}

// ListMine godoc
// @Summary Мои заявки на пополнение
// @Tags Deposits
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Router /deposits [get]
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.deposits.ListMine"
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
		log.Error("failed to list deposits", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"deposits": list}))
}

// List godoc
// @Summary Все заявки на пополнение
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, approved или rejected"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.ErrorResponse
// @Router /admin/deposits [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.deposits.List"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	status := models.DepositStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.DepositPending, models.DepositApproved, models.DepositRejected:
	default:
		response.JSON(w, r, http.StatusBadRequest, response.Error("unknown status"))
		return
	}

	list, err := h.service.List(r.Context(), status)
	if err != nil {
		log.Error("failed to list deposits", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"deposits": list}))
}

// Approve godoc
// @Summary Подтвердить заявку
// @Description Зачисляет сумму на баланс покупателя и записывает транзакцию.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID заявки"
// @Param request body DecisionRequest false "Комментарий администратора"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "Заявка уже обработана"
// @Router /admin/deposits/{id}/approve [post]
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.deposits.Approve"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	adminID, req, ok := h.decision(w, r, log)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	approved, err := h.service.Approve(r.Context(), id, adminID, req.Note)
	if err != nil {
		log.Error("failed to approve deposit", slog.String("deposit_id", id), sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(approved))
}

// Reject godoc
// @Summary Отклонить заявку
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID заявки"
// @Param request body DecisionRequest false "Причина"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "Заявка уже обработана"
// @Router /admin/deposits/{id}/reject [post]
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.deposits.Reject"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	adminID, req, ok := h.decision(w, r, log)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	rejected, err := h.service.Reject(r.Context(), id, adminID, req.Note)
	if err != nil {
		log.Error("failed to reject deposit", slog.String("deposit_id", id), sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"deposit": rejected}))
}

func (h *Handler) decision(w http.ResponseWriter, r *http.Request, log *slog.Logger) (string, DecisionRequest, bool) {
	var req DecisionRequest
	claims, ok := middlewarectx.ClaimsFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error("unauthorized"))
		return "", req, false
	}
	if err := request.DecodeOptional(r, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		response.JSON(w, r, http.StatusBadRequest, response.Error("invalid request body"))
		return "", req, false
	}
	if err := h.validate.Struct(req); err != nil {
		response.JSON(w, r, http.StatusUnprocessableEntity, response.ValidationError(err.(validator.ValidationErrors)))
		return "", req, false
	}
	return claims.UserID, req, true
}
