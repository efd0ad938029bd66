package shop

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/hackstore/internal/config"
	"github.com/magabrotheeeer/hackstore/internal/events"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/services"
	"github.com/magabrotheeeer/hackstore/internal/services/ledger"
	"github.com/magabrotheeeer/hackstore/internal/storage/kv"
	"github.com/magabrotheeeer/hackstore/internal/storage/repository"
)

type env struct {
	users    *repository.UserRepository
	txs      *repository.TransactionRepository
	packages *repository.PackageRepository
	svc      *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := kv.OpenLocal(filepath.Join(t.TempDir(), "store.json"), sl.Discard())

	e := &env{
		users:    repository.NewUserRepository(store, config.Wallet{VerifyAttempts: 2, Tolerance: 0.01}, sl.Discard()),
		txs:      repository.NewTransactionRepository(store, 0.01),
		packages: repository.NewPackageRepository(store),
	}
	pub := events.NewNoop(sl.Discard())
	journal := ledger.New(e.users, e.txs, repository.NewIntentRepository(store), pub, 0.01, sl.Discard())
	e.svc = New(e.packages, e.users, e.txs, journal, pub, sl.Discard())
	return e
}

func (e *env) user(t *testing.T, name string, balance float64, active bool) *models.User {
	t.Helper()
	u, err := e.users.Create(context.Background(), &models.User{Username: name, Balance: models.Balance(balance), IsActive: active})
	require.NoError(t, err)
	return u
}

func (e *env) pkg(t *testing.T, price int64) *models.Package {
	t.Helper()
	p, err := e.packages.Create(context.Background(), &models.Package{Name: "VIP 30d", Price: price, Duration: 30, Platform: models.PlatformAndroid})
	require.NoError(t, err)
	return p
}

func TestService_Purchase(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.user(t, "gamer", 150000, true)
	p := e.pkg(t, 99000)

	res, err := e.svc.Purchase(ctx, u.ID, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 51000, res.Balance, 1e-9)
	assert.Equal(t, models.TransactionPurchase, res.Transaction.Type)
	assert.InDelta(t, 99000, res.Transaction.Amount, 1e-9)
	assert.True(t, res.Transaction.Consistent(0.01))

	got, err := e.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.InDelta(t, 51000, got.Balance.Float(), 1e-9)
	require.NotNil(t, got.CurrentPackage)
	assert.Equal(t, p.ID, *got.CurrentPackage)
	assert.NotNil(t, got.PackagePurchasedAt)

	history, err := e.svc.History(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestService_PurchaseErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	poor := e.user(t, "poor", 1000, true)
	banned := e.user(t, "banned", 1000000, false)
	p := e.pkg(t, 5000)

	tests := []struct {
		name      string
		userID    string
		packageID string
		wantErr   error
	}{
		{name: "insufficient balance", userID: poor.ID, packageID: p.ID, wantErr: repository.ErrInsufficientBalance},
		{name: "inactive user", userID: banned.ID, packageID: p.ID, wantErr: services.ErrUserInactive},
		{name: "unknown package", userID: poor.ID, packageID: "nope", wantErr: services.ErrPackageNotFound},
		{name: "unknown user", userID: "ghost", packageID: p.ID, wantErr: services.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Purchase(ctx, tt.userID, tt.packageID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	got, err := e.users.FindByID(ctx, poor.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1000, got.Balance.Float(), 1e-9)
	assert.Nil(t, got.CurrentPackage)
}

func TestService_Refund(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.user(t, "gamer", 100000, true)
	p := e.pkg(t, 40000)

	res, err := e.svc.Purchase(ctx, u.ID, p.ID)
	require.NoError(t, err)

	refund, err := e.svc.Refund(ctx, res.Transaction.ID, "admin-1", "duplicate order")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionRefund, refund.Type)
	assert.Equal(t, res.Transaction.ID, refund.RelatedPaymentID)
	assert.InDelta(t, 40000, refund.Amount, 1e-9)
	assert.True(t, refund.Consistent(0.01))

	got, err := e.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100000, got.Balance.Float(), 1e-9)

	_, err = e.svc.Refund(ctx, res.Transaction.ID, "admin-1", "")
	assert.ErrorIs(t, err, services.ErrAlreadyRefunded)

	_, err = e.svc.Refund(ctx, refund.ID, "admin-1", "")
	assert.ErrorIs(t, err, services.ErrNotRefundable)

	_, err = e.svc.Refund(ctx, "missing", "admin-1", "")
	assert.ErrorIs(t, err, services.ErrTransactionNotFound)
}

type JournalMock struct {
	mock.Mock
}

func (m *JournalMock) Apply(ctx context.Context, req ledger.Request) (*ledger.Outcome, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Outcome), args.Error(1)
}

func (m *JournalMock) Register(kind models.IntentKind, f ledger.Finalizer) {
	m.Called(kind, f)
}

func TestService_PurchaseBuildsJournalRequest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.user(t, "gamer", 10000, true)
	p := e.pkg(t, 2500)

	journal := new(JournalMock)
	journal.On("Register", models.IntentPurchase, mock.Anything).Once()
	journal.On("Apply", mock.Anything, mock.MatchedBy(func(req ledger.Request) bool {
		return req.Kind == models.IntentPurchase &&
			req.UserID == u.ID &&
			req.Delta == -2500 &&
			req.SubjectID == p.ID &&
			req.RefID != ""
	})).Return(&ledger.Outcome{Transaction: &models.Transaction{AfterBalance: 7500}}, nil).Once()

	svc := New(e.packages, e.users, e.txs, journal, events.NewNoop(sl.Discard()), sl.Discard())
	res, err := svc.Purchase(ctx, u.ID, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 7500, res.Balance, 1e-9)
	journal.AssertExpectations(t)
}
