package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/hackstore/internal/storage/kv"
)

type stubStorage struct {
	backend  kv.Backend
	degraded bool
}

func (s stubStorage) Backend() kv.Backend { return s.backend }
func (s stubStorage) Degraded() bool      { return s.degraded }

func TestHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name        string
		storage     stubStorage
		wantStatus  string
		wantBackend string
	}{
		{name: "remote", storage: stubStorage{backend: kv.BackendRedis}, wantStatus: "ok", wantBackend: "redis"},
		{name: "fallen back to local", storage: stubStorage{backend: kv.BackendLocal, degraded: true}, wantStatus: "degraded", wantBackend: "local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.storage)
			start := h.started
			h.now = func() time.Time { return start.Add(90 * time.Second) }
			w := httptest.NewRecorder()

			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			require.Equal(t, http.StatusOK, w.Code)
			var resp struct {
				Data map[string]any `json:"data"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.wantStatus, resp.Data["status"])
			assert.Equal(t, tt.wantBackend, resp.Data["storage"])
			assert.Equal(t, "1m30s", resp.Data["uptime"])
		})
	}
}
