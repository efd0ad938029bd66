package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/hackstore/internal/http/middlewarectx"
	"github.com/magabrotheeeer/hackstore/internal/lib/jwt"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/services"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Logout(ctx context.Context, claims *jwt.CustomClaims) error {
	return m.Called(ctx, claims).Error(0)
}

func (m *ServiceMock) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func newRequest(method, target string, claims *jwt.CustomClaims) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := context.WithValue(req.Context(), middleware.RequestIDKey, "reqid123")
	if claims != nil {
		ctx = middlewarectx.WithClaims(ctx, claims)
	}
	return req.WithContext(ctx)
}

func TestHandler_Logout(t *testing.T) {
	claims := &jwt.CustomClaims{UserID: "u1", Username: "alice", Role: "user"}

	t.Run("revokes token", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("Logout", mock.Anything, claims).Return(nil).Once()
		w := httptest.NewRecorder()

		New(sl.Discard(), svc).Logout(w, newRequest(http.MethodPost, "/api/auth/logout", claims))

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("without claims", func(t *testing.T) {
		svc := new(ServiceMock)
		w := httptest.NewRecorder()

		New(sl.Discard(), svc).Logout(w, newRequest(http.MethodPost, "/api/auth/logout", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		svc.AssertNotCalled(t, "Logout", mock.Anything, mock.Anything)
	})

	t.Run("store failure", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("Logout", mock.Anything, claims).Return(errors.New("redis down")).Once()
		w := httptest.NewRecorder()

		New(sl.Discard(), svc).Logout(w, newRequest(http.MethodPost, "/api/auth/logout", claims))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHandler_Me(t *testing.T) {
	claims := &jwt.CustomClaims{UserID: "u1", Username: "alice", Role: "user"}

	tests := []struct {
		name     string
		user     *models.User
		err      error
		wantCode int
	}{
		{name: "found", user: &models.User{Username: "alice", Balance: 150000}, wantCode: http.StatusOK},
		{name: "deleted user", err: services.ErrUserNotFound, wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			svc.On("CurrentUser", mock.Anything, "u1").Return(tt.user, tt.err).Once()
			w := httptest.NewRecorder()

			New(sl.Discard(), svc).Me(w, newRequest(http.MethodGet, "/api/me", claims))

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.user != nil {
				var resp struct {
					Data struct {
						User map[string]any `json:"user"`
					} `json:"data"`
				}
				require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
				assert.Equal(t, "alice", resp.Data.User["username"])
				assert.InDelta(t, 150000, resp.Data.User["balance"], 1e-9)
			}
			svc.AssertExpectations(t)
		})
	}
}
