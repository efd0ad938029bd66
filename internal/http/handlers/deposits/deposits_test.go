package deposits

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/hackstore/internal/http/middlewarectx"
	"github.com/magabrotheeeer/hackstore/internal/lib/jwt"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/services"
	"github.com/magabrotheeeer/hackstore/internal/services/deposit"
	"github.com/magabrotheeeer/hackstore/internal/storage/repository"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Create(ctx context.Context, userID string, req deposit.CreateRequest) (*deposit.Created, error) {
	args := m.Called(ctx, userID, req)
	c, _ := args.Get(0).(*deposit.Created)
	return c, args.Error(1)
}

func (m *ServiceMock) Approve(ctx context.Context, depositID, adminID, note string) (*deposit.Approved, error) {
	args := m.Called(ctx, depositID, adminID, note)
	a, _ := args.Get(0).(*deposit.Approved)
	return a, args.Error(1)
}

func (m *ServiceMock) Reject(ctx context.Context, depositID, adminID, note string) (*models.DepositRequest, error) {
	args := m.Called(ctx, depositID, adminID, note)
	d, _ := args.Get(0).(*models.DepositRequest)
	return d, args.Error(1)
}

func (m *ServiceMock) ListForUser(ctx context.Context, userID string) ([]*models.DepositRequest, error) {
	args := m.Called(ctx, userID)
	l, _ := args.Get(0).([]*models.DepositRequest)
	return l, args.Error(1)
}

func (m *ServiceMock) List(ctx context.Context, status models.DepositStatus) ([]*models.DepositRequest, error) {
	args := m.Called(ctx, status)
	l, _ := args.Get(0).([]*models.DepositRequest)
	return l, args.Error(1)
}

var (
	userClaims  = &jwt.CustomClaims{UserID: "u1", Username: "alice", Role: "user"}
	adminClaims = &jwt.CustomClaims{UserID: "admin1", Username: "root", Role: "admin"}
)

func newRequest(method, target, body string, claims *jwt.CustomClaims, id string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	ctx := context.WithValue(req.Context(), middleware.RequestIDKey, "reqid123")
	if claims != nil {
		ctx = middlewarectx.WithClaims(ctx, claims)
	}
	if id != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

type envelope struct {
	Status string          `json:"status"`
	Error  string          `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var resp envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestHandler_Create(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		claims    *jwt.CustomClaims
		setup     func(m *ServiceMock)
		wantCode  int
		wantError string
	}{
		{
			name:   "created",
			body:   `{"amount":50000,"bankId":"b1"}`,
			claims: userClaims,
			setup: func(m *ServiceMock) {
				m.On("Create", mock.Anything, "u1", deposit.CreateRequest{Amount: 50000, BankID: "b1"}).
					Return(&deposit.Created{
						Deposit: &models.DepositRequest{Base: models.Base{ID: "d1"}, Amount: 50000, Status: models.DepositPending},
						Bank:    &models.BankAccount{BankCode: "VCB"},
						QRURL:   "https://img.vietqr.io/image/VCB-1-compact2.png",
					}, nil).Once()
			},
			wantCode: http.StatusCreated,
		},
		{
			name:      "unauthenticated",
			body:      `{"amount":50000,"bankId":"b1"}`,
			wantCode:  http.StatusUnauthorized,
			wantError: "unauthorized",
		},
		{
			name:      "missing bank",
			body:      `{"amount":50000}`,
			claims:    userClaims,
			wantCode:  http.StatusUnprocessableEntity,
			wantError: "field BankID is a required field",
		},
		{
			name:   "below minimum",
			body:   `{"amount":5000,"bankId":"b1"}`,
			claims: userClaims,
			setup: func(m *ServiceMock) {
				m.On("Create", mock.Anything, "u1", mock.Anything).Return(nil, services.ErrAmountTooSmall).Once()
			},
			wantCode:  http.StatusBadRequest,
			wantError: services.ErrAmountTooSmall.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			if tt.setup != nil {
				tt.setup(svc)
			}
			w := httptest.NewRecorder()

			New(sl.Discard(), svc).Create(w, newRequest(http.MethodPost, "/api/deposits/create", tt.body, tt.claims, ""))

			assert.Equal(t, tt.wantCode, w.Code)
			resp := decode(t, w)
			assert.Equal(t, tt.wantError, resp.Error)
			if tt.wantCode == http.StatusCreated {
				var created struct {
					Deposit models.DepositRequest `json:"deposit"`
					QRURL   string                `json:"qrUrl"`
				}
				require.NoError(t, json.Unmarshal(resp.Data, &created))
				assert.Equal(t, "d1", created.Deposit.ID)
				assert.NotEmpty(t, created.QRURL)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_ListMine(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("ListForUser", mock.Anything, "u1").Return([]*models.DepositRequest{
		{Base: models.Base{ID: "d2"}, UserID: "u1"},
		{Base: models.Base{ID: "d1"}, UserID: "u1"},
	}, nil).Once()
	w := httptest.NewRecorder()

	New(sl.Discard(), svc).ListMine(w, newRequest(http.MethodGet, "/api/deposits", "", userClaims, ""))

	assert.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Deposits []models.DepositRequest `json:"deposits"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	assert.Len(t, data.Deposits, 2)
	svc.AssertExpectations(t)
}

func TestHandler_List(t *testing.T) {
	t.Run("status filter", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("List", mock.Anything, models.DepositPending).Return([]*models.DepositRequest{}, nil).Once()
		w := httptest.NewRecorder()

		New(sl.Discard(), svc).List(w, newRequest(http.MethodGet, "/api/admin/deposits?status=pending", "", adminClaims, ""))

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("unknown status", func(t *testing.T) {
		svc := new(ServiceMock)
		w := httptest.NewRecorder()

		New(sl.Discard(), svc).List(w, newRequest(http.MethodGet, "/api/admin/deposits?status=lost", "", adminClaims, ""))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	})
}

func TestHandler_Approve(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		note     string
		err      error
		wantCode int
	}{
		{name: "empty body", body: "", wantCode: http.StatusOK},
		{name: "with note", body: `{"note":"checked statement"}`, note: "checked statement", wantCode: http.StatusOK},
		{name: "already decided", body: "", err: repository.ErrInvalidTransition, wantCode: http.StatusConflict},
		{name: "unknown deposit", body: "", err: services.ErrDepositNotFound, wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			var out *deposit.Approved
			if tt.err == nil {
				out = &deposit.Approved{
					Deposit:     &models.DepositRequest{Base: models.Base{ID: "d1"}, Status: models.DepositApproved},
					Transaction: &models.Transaction{Base: models.Base{ID: "t1"}},
				}
			}
			svc.On("Approve", mock.Anything, "d1", "admin1", tt.note).Return(out, tt.err).Once()
			w := httptest.NewRecorder()

			New(sl.Discard(), svc).Approve(w, newRequest(http.MethodPost, "/api/admin/deposits/d1/approve", tt.body, adminClaims, "d1"))

			assert.Equal(t, tt.wantCode, w.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_Reject(t *testing.T) {
	svc := new(ServiceMock)
	svc.On("Reject", mock.Anything, "d1", "admin1", "no transfer").
		Return(&models.DepositRequest{Base: models.Base{ID: "d1"}, Status: models.DepositRejected}, nil).Once()
	w := httptest.NewRecorder()

	New(sl.Discard(), svc).Reject(w, newRequest(http.MethodPost, "/api/admin/deposits/d1/reject", `{"note":"no transfer"}`, adminClaims, "d1"))

	assert.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Deposit models.DepositRequest `json:"deposit"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	assert.Equal(t, models.DepositRejected, data.Deposit.Status)
	svc.AssertExpectations(t)
}
