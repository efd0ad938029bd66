// Package settings HTTP-обработчики настроек сайта.
package settings

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/hackstore/internal/http/request"
	"github.com/magabrotheeeer/hackstore/internal/http/response"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/models"
)

// Service чтение и изменение настроек.
type Service interface {
	Settings(ctx context.Context) (*models.SiteSettings, error)
	UpdateSettings(ctx context.Context, patch json.RawMessage) (*models.SiteSettings, error)
}

// Handler обработчики /api/settings.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт обработчик.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// Get godoc
// @Summary Настройки сайта
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Response
// @Router /settings [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.settings.Get"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	s, err := h.service.Settings(r.Context())
	if err != nil {
		log.Error("failed to load settings", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"settings": s}))
}

// Update godoc
// @Summary Изменить настройки сайта
// @Description Частичное обновление, вложенные объекты сливаются с текущими.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /admin/settings [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.settings.Update"
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
	s, err := h.service.UpdateSettings(r.Context(), patch)
	if err != nil {
		log.Error("failed to update settings", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"settings": s}))
}
