// Package packages HTTP-обработчики каталога пакетов и покупки.
package packages

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
	"github.com/magabrotheeeer/hackstore/internal/http/request"
	"github.com/magabrotheeeer/hackstore/internal/http/response"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/services/shop"
)

// Catalog операции над пакетами.
type Catalog interface {
	Packages(ctx context.Context) ([]*models.Package, error)
	Package(ctx context.Context, id string) (*models.Package, error)
	CreatePackage(ctx context.Context, p *models.Package) (*models.Package, error)
	UpdatePackage(ctx context.Context, id string, patch json.RawMessage) (*models.Package, error)
	DeletePackage(ctx context.Context, id string) error
}

// Shop покупка пакета за баланс.
type Shop interface {
	Purchase(ctx context.Context, userID, packageID string) (*shop.Purchase, error)
}

// CreateRequest тело создания пакета.
type CreateRequest struct {
	Name               string                          `json:"name" validate:"required,max=100"`
	Description        string                          `json:"description" validate:"max=2000"`
	Price              int64                           `json:"price" validate:"gt=0"`
	Duration           int                             `json:"duration" validate:"gt=0"`
	Features           []string                        `json:"features"`
	DetailedFeatures   map[string][]models.FeatureItem `json:"detailedFeatures"`
	Icon               string                          `json:"icon"`
	Popular            bool                            `json:"popular"`
	Platform           models.Platform                 `json:"platform" validate:"omitempty,oneof=android ios emulator all"`
	DownloadURL        string                          `json:"downloadUrl" validate:"omitempty,url"`
	SystemRequirements string                          `json:"systemRequirements"`
	Version            string                          `json:"version"`
	BanRisk            models.BanRisk                  `json:"banRisk" validate:"omitempty,oneof=none low medium high"`
	AntiBanGuarantee   bool                            `json:"antiBanGuarantee"`
}

// Handler обработчики /api/packages и /api/admin/packages.
type Handler struct {
	log      *slog.Logger
	catalog  Catalog
	shop     Shop
	validate *validator.Validate
}

// New создаёт обработчик.
func New(log *slog.Logger, catalog Catalog, shop Shop) *Handler {
	return &Handler{
		log:      log,
		catalog:  catalog,
		shop:     shop,
		validate: validator.New(),
	}
}

// List godoc
// @Summary Список пакетов
// @Tags Packages
// @Produce json
// @Success 200 {object} response.Response
// @Router /packages [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.packages.List"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	list, err := h.catalog.Packages(r.Context())
	if err != nil {
		log.Error("failed to list packages", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"packages": list}))
}

// Get godoc
// @Summary Пакет по ID
// @Tags Packages
// @Produce json
// @Param id path string true "ID пакета"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /packages/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.packages.Get"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	p, err := h.catalog.Package(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		log.Info("package lookup failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"package": p}))
}

// Purchase godoc
// @Summary Купить пакет
// @Description Списывает цену пакета с баланса и назначает пакет пользователю.
// @Tags Packages
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID пакета"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse "Недостаточно средств"
// @Router /packages/{id}/purchase [post]
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.packages.Purchase"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	claims, ok := middlewarectx.ClaimsFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error("unauthorized"))
		return
	}
	packageID := chi.URLParam(r, "id")

	out, err := h.shop.Purchase(r.Context(), claims.UserID, packageID)
	if err != nil {
		log.Info("purchase failed", slog.String("package_id", packageID), sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	log.Info("package purchased", slog.String("package_id", packageID), slog.String("user_id", claims.UserID))
	response.JSON(w, r, http.StatusOK, response.OKWithData(out))
}

// Create godoc
// @Summary Создать пакет
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateRequest true "Пакет"
// @Success 201 {object} response.Response
// @Failure 422 {object} response.ErrorResponse
// @Router /admin/packages [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.packages.Create"
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

	created, err := h.catalog.CreatePackage(r.Context(), &models.Package{
		Name:               req.Name,
		Description:        req.Description,
		Price:              req.Price,
		Duration:           req.Duration,
		Features:           req.Features,
		DetailedFeatures:   req.DetailedFeatures,
		Icon:               req.Icon,
		Popular:            req.Popular,
		Platform:           req.Platform,
		DownloadURL:        req.DownloadURL,
		SystemRequirements: req.SystemRequirements,
		Version:            req.Version,
		BanRisk:            req.BanRisk,
		AntiBanGuarantee:   req.AntiBanGuarantee,
	})
	if err != nil {
		log.Error("failed to create package", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, response.OKWithData(map[string]any{"package": created}))
}

// Update godoc
// @Summary Изменить пакет
// @Description Частичное обновление: передаются только изменяемые поля.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID пакета"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 413 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /admin/packages/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.packages.Update"
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
	id := chi.URLParam(r, "id")
	current, err := h.catalog.Package(r.Context(), id)
	if err != nil {
		log.Info("package not available for update", slog.String("package_id", id), sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	merged, err := applyPatch(current, patch)
	if err != nil {
		log.Info("patch does not fit package", sl.Err(err))
		response.JSON(w, r, http.StatusBadRequest, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(merged); err != nil {
		log.Info("validation failed", sl.Err(err))
		response.JSON(w, r, http.StatusUnprocessableEntity, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	updated, err := h.catalog.UpdatePackage(r.Context(), id, patch)
	if err != nil {
		log.Error("failed to update package", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"package": updated}))
}

// applyPatch накладывает патч на текущий пакет для проверки теми же правилами, что и создание.
func applyPatch(current *models.Package, patch json.RawMessage) (CreateRequest, error) {
	var req CreateRequest
	data, err := json.Marshal(current)
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, err
	}
	if err := json.Unmarshal(patch, &req); err != nil {
		return req, err
	}
	return req, nil
}

// Delete godoc
// @Summary Удалить пакет
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID пакета"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/packages/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.packages.Delete"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id := chi.URLParam(r, "id")
	if err := h.catalog.DeletePackage(r.Context(), id); err != nil {
		log.Error("failed to delete package", slog.String("package_id", id), sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{"deleted": id}))
}
