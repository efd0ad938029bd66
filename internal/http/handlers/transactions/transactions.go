// Package transactions HTTP-обработчики истории операций и возвратов.
package transactions

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/hackstore/internal/http/middlewarectx"
	"github.com/magabrotheeeer/hackstore/internal/http/request"
	"github.com/magabrotheeeer/hackstore/internal/http/response"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/models"
)

// Service история и возвраты.
type Service interface {
	History(ctx context.Context, userID string) ([]*models.Transaction, error)
	Refund(ctx context.Context, transactionID, adminID, reason string) (*models.Transaction, error)
}

// RefundRequest тело возврата.
type RefundRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Handler обработчики транзакций.
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

// Mine godoc
// @Summary История операций
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Router /transactions [get]
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.transactions.Mine"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	claims, ok := middlewarectx.ClaimsFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error("unauthorized"))
		return
	}
	list, err := h.service.History(r.Context(), claims.UserID)
	if err != nil {
		log.Error("failed to load history", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"transactions": list}))
}

// Refund godoc
// @Summary Возврат покупки
// @Description Возвращает сумму покупки на баланс. Для каждой покупки возможен один возврат.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID транзакции покупки"
// @Param request body RefundRequest false "Причина"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "Уже возвращена или не является покупкой"
// @Router /admin/transactions/{id}/refund [post]
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.transactions.Refund"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	claims, ok := middlewarectx.ClaimsFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error("unauthorized"))
		return
	}
	var req RefundRequest
	if err := request.DecodeOptional(r, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		response.JSON(w, r, http.StatusBadRequest, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.JSON(w, r, http.StatusUnprocessableEntity, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	id := chi.URLParam(r, "id")
	refund, err := h.service.Refund(r.Context(), id, claims.UserID, req.Reason)
	if err != nil {
		log.Info("refund failed", slog.String("transaction_id", id), sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"transaction": refund}))
}
