// Package health обработчик GET /api/health.
package health

import (
	"net/http"
	"time"

	"github.com/magabrotheeeer/hackstore/internal/http/response"
	"github.com/magabrotheeeer/hackstore/internal/storage/kv"
)

// Storage состояние хранилища.
type Storage interface {
	Backend() kv.Backend
	Degraded() bool
}

// Handler отдаёт активный бэкенд хранилища и признак деградации.
type Handler struct {
	storage Storage
	started time.Time
	now     func() time.Time
}

// New создаёт обработчик.
func New(storage Storage) *Handler {
	now := func() time.Time { return time.Now().UTC() }
	return &Handler{storage: storage, started: now(), now: now}
}

// ServeHTTP godoc
// @Summary Состояние сервиса
// @Tags Health
// @Produce json
// @Success 200 {object} response.Response
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if h.storage.Degraded() {
		status = "degraded"
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]any{
		"status":  status,
		"storage": h.storage.Backend(),
		"uptime":  h.now().Sub(h.started).Round(time.Second).String(),
		"time":    h.now(),
	}))
}
