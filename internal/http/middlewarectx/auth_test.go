package middlewarectx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/hackstore/internal/http/middlewarectx"
	"github.com/magabrotheeeer/hackstore/internal/lib/jwt"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/services"
)

// Mock for auth service
type AuthServiceMock struct {
	mock.Mock
}

func (m *AuthServiceMock) ValidateToken(ctx context.Context, token string) (*jwt.CustomClaims, error) {
	args := m.Called(ctx, token)
	claims, _ := args.Get(0).(*jwt.CustomClaims)
	return claims, args.Error(1)
}

func TestJWTMiddleware(t *testing.T) {
	authMock := new(AuthServiceMock)

	var gotClaims *jwt.CustomClaims
	handlerCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		gotClaims, _ = middlewarectx.ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := middlewarectx.JWTMiddleware(authMock, sl.Discard())(next)

	tests := []struct {
		name           string
		authHeader     string
		mockResp       *jwt.CustomClaims
		mockErr        error
		wantStatusCode int
		wantCalled     bool
	}{
		{
			name:           "missing Authorization header",
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "invalid Authorization header prefix",
			authHeader:     "Basic sometoken",
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "invalid token",
			authHeader:     "Bearer token",
			mockErr:        jwt.ErrInvalidToken,
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "revoked token",
			authHeader:     "Bearer token",
			mockErr:        services.ErrTokenRevoked,
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "store failure",
			authHeader:     "Bearer token",
			mockErr:        errors.New("redis down"),
			wantStatusCode: http.StatusInternalServerError,
		},
		{
			name:           "valid token",
			authHeader:     "Bearer validtoken",
			mockResp:       &jwt.CustomClaims{UserID: "u-1", Username: "testuser", Role: "user"},
			wantStatusCode: http.StatusOK,
			wantCalled:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled = false
			gotClaims = nil
			authMock.ExpectedCalls = nil
			authMock.Calls = nil
			if tt.mockResp != nil || tt.mockErr != nil {
				authMock.On("ValidateToken", mock.Anything, strings.TrimPrefix(tt.authHeader, "Bearer ")).
					Return(tt.mockResp, tt.mockErr).Once()
			}

			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Equal(t, tt.wantCalled, handlerCalled)
			if tt.wantCalled {
				assert.Equal(t, "u-1", gotClaims.UserID)
			}
			authMock.AssertExpectations(t)
		})
	}
}

func TestAdminOnly(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := middlewarectx.AdminOnly(sl.Discard())(next)

	tests := []struct {
		name   string
		claims *jwt.CustomClaims
		want   int
	}{
		{name: "no claims", want: http.StatusUnauthorized},
		{name: "regular user", claims: &jwt.CustomClaims{UserID: "u", Role: "user"}, want: http.StatusForbidden},
		{name: "admin", claims: &jwt.CustomClaims{UserID: "a", Role: "admin"}, want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
			if tt.claims != nil {
				req = req.WithContext(middlewarectx.WithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
