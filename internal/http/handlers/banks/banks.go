// Package banks HTTP-обработчики банковских счетов для пополнения.
package banks

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/hackstore/internal/http/request"
	"github.com/magabrotheeeer/hackstore/internal/http/response"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/models"
)

// Service операции над счетами.
type Service interface {
	Banks(ctx context.Context, activeOnly bool) ([]*models.BankAccount, error)
	CreateBank(ctx context.Context, b *models.BankAccount) (*models.BankAccount, error)
	UpdateBank(ctx context.Context, id string, patch json.RawMessage) (*models.BankAccount, error)
	DeleteBank(ctx context.Context, id string) error
}

// CreateRequest тело создания счёта.
type CreateRequest struct {
	BankName      string `json:"bankName" validate:"required,max=100"`
	BankCode      string `json:"bankCode" validate:"required,alphanum,max=20"`
	AccountNumber string `json:"accountNumber" validate:"required,max=30"`
	AccountName   string `json:"accountName" validate:"required,max=100"`
	IsActive      *bool  `json:"isActive"`
	Note          string `json:"note" validate:"max=500"`
}

// Handler обработчики /api/banks и /api/admin/banks.
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

// ListActive godoc
// @Summary Активные счета для перевода
// @Tags Banks
// @Produce json
// @Success 200 {object} response.Response
// @Router /banks [get]
func (h *Handler) ListActive(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

// ListAll godoc
// @Summary Все счета
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /admin/banks [get]
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	const op = "handlers.banks.List"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	list, err := h.service.Banks(r.Context(), activeOnly)
	if err != nil {
		log.Error("failed to list banks", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"banks": list}))
}

// Create godoc
// @Summary Добавить счёт
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateRequest true "Счёт"
// @Success 201 {object} response.Response
// @Failure 422 {object} response.ErrorResponse
// @Router /admin/banks [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.banks.Create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

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

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	created, err := h.service.CreateBank(r.Context(), &models.BankAccount{
		BankName:      req.BankName,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		IsActive:      active,
		Note:          req.Note,
	})
	if err != nil {
		log.Error("failed to create bank", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, response.OKWithData(map[string]any{"bank": created}))
}

// Update godoc
// @Summary Изменить счёт
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID счёта"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/banks/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.banks.Update"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	patch, err := request.ReadPatch(w, r)
	if err != nil {
		log.Info("invalid patch body", sl.Err(err))
		response.JSON(w, r, request.PatchStatus(err), response.Error("invalid request body"))
		return
	}
	updated, err := h.service.UpdateBank(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		log.Error("failed to update bank", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"bank": updated}))
}

// Delete godoc
// @Summary Удалить счёт
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID счёта"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/banks/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.banks.Delete"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id := chi.URLParam(r, "id")
	if err := h.service.DeleteBank(r.Context(), id); err != nil {
		log.Error("failed to delete bank", slog.String("bank_id", id), sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"deleted": id}))
}
