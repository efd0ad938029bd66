package deposit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/hackstore/internal/config"
	"github.com/magabrotheeeer/hackstore/internal/events"
	"github.com/magabrotheeeer/hackstore/internal/lib/refcode"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/services"
	"github.com/magabrotheeeer/hackstore/internal/services/ledger"
	"github.com/magabrotheeeer/hackstore/internal/storage/kv"
	"github.com/magabrotheeeer/hackstore/internal/storage/repository"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, e events.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

type env struct {
	users    *repository.UserRepository
	txs      *repository.TransactionRepository
	deposits *repository.DepositRepository
	banks    *repository.BankRepository
	intents  *repository.IntentRepository
	pub      *PublisherMock
	svc      *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := kv.OpenLocal(filepath.Join(t.TempDir(), "store.json"), sl.Discard())

	e := &env{
		users:    repository.NewUserRepository(store, config.Wallet{VerifyAttempts: 2, Tolerance: 0.01}, sl.Discard()),
		txs:      repository.NewTransactionRepository(store, 0.01),
		deposits: repository.NewDepositRepository(store),
		banks:    repository.NewBankRepository(store),
		intents:  repository.NewIntentRepository(store),
		pub:      new(PublisherMock),
	}
	e.pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
	journal := ledger.New(e.users, e.txs, e.intents, e.pub, 0.01, sl.Discard())
	e.svc = New(e.deposits, e.banks, e.users, journal, e.pub, 10000, sl.Discard())
	return e
}

func (e *env) seed(t *testing.T, balance float64) (*models.User, *models.BankAccount) {
	t.Helper()
	ctx := context.Background()
	u, err := e.users.Create(ctx, &models.User{Username: "player1", Balance: models.Balance(balance), IsActive: true})
	require.NoError(t, err)
	b, err := e.banks.Create(ctx, &models.BankAccount{
		BankName:      "Vietcombank",
		BankCode:      "VCB",
		AccountNumber: "0123456789",
		AccountName:   "NGUYEN VAN A",
		IsActive:      true,
	})
	require.NoError(t, err)
	return u, b
}

func (e *env) published(typ events.Type) int {
	n := 0
	for _, c := range e.pub.Calls {
		if c.Arguments.Get(1).(events.Event).Type == typ {
			n++
		}
	}
	return n
}

func TestService_CreateAndApprove(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, b := e.seed(t, 0)

	created, err := e.svc.Create(ctx, u.ID, CreateRequest{Amount: 100000, BankID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, models.DepositPending, created.Deposit.Status)
	assert.Equal(t, DefaultMethod, created.Deposit.Method)
	assert.True(t, refcode.Valid(created.Deposit.Description))
	assert.True(t, strings.HasPrefix(created.QRURL, "https://img.vietqr.io/image/VCB-0123456789-compact.jpg?"))
	assert.Contains(t, created.QRURL, "amount=100000")
	assert.Contains(t, created.QRURL, "addInfo="+created.Deposit.Description)

	approved, err := e.svc.Approve(ctx, created.Deposit.ID, "admin-1", "checked")
	require.NoError(t, err)
	assert.Equal(t, models.DepositApproved, approved.Deposit.Status)
	assert.Equal(t, "admin-1", approved.Deposit.ApprovedBy)
	assert.Equal(t, "checked", approved.Deposit.AdminNote)
	require.NotNil(t, approved.Deposit.ApprovedAt)

	got, err := e.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100000, got.Balance.Float(), 1e-9)

	txs, err := e.txs.FindByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TransactionDeposit, txs[0].Type)
	assert.InDelta(t, 100000, txs[0].Amount, 1e-9)
	assert.Equal(t, created.Deposit.ID, txs[0].RelatedPaymentID)

	assert.Equal(t, 1, e.published(events.DepositCreated))
	assert.Equal(t, 1, e.published(events.DepositApproved))
	assert.Equal(t, 1, e.published(events.BalanceUpdated))
}

func TestService_LedgerConsistency(t *testing.T) {
	amounts := []int64{10000, 55555, 100000, 2500000}
	for _, amount := range amounts {
		t.Run(fmt.Sprint(amount), func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			u, b := e.seed(t, 1234)

			created, err := e.svc.Create(ctx, u.ID, CreateRequest{Amount: amount, BankID: b.ID, Description: "topup"})
			require.NoError(t, err)
			assert.Equal(t, "topup", created.Deposit.Description)

			res, err := e.svc.Approve(ctx, created.Deposit.ID, "admin", "")
			require.NoError(t, err)

			tx := res.Transaction
			assert.InDelta(t, float64(amount), tx.AfterBalance-tx.BeforeBalance, 1e-9)

			got, err := e.users.FindByID(ctx, u.ID)
			require.NoError(t, err)
			assert.InDelta(t, tx.AfterBalance, got.Balance.Float(), 1e-9)
		})
	}
}

func TestService_CreateValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, b := e.seed(t, 0)
	inactive, err := e.banks.Create(ctx, &models.BankAccount{BankCode: "MB", AccountNumber: "1", IsActive: false})
	require.NoError(t, err)

	tests := []struct {
		name    string
		userID  string
		req     CreateRequest
		wantErr error
	}{
		{name: "below minimum", userID: u.ID, req: CreateRequest{Amount: 9999, BankID: b.ID}, wantErr: services.ErrAmountTooSmall},
		{name: "unknown bank", userID: u.ID, req: CreateRequest{Amount: 10000, BankID: "nope"}, wantErr: services.ErrBankUnavailable},
		{name: "inactive bank", userID: u.ID, req: CreateRequest{Amount: 10000, BankID: inactive.ID}, wantErr: services.ErrBankUnavailable},
		{name: "unknown user", userID: "ghost", req: CreateRequest{Amount: 10000, BankID: b.ID}, wantErr: services.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Create(ctx, tt.userID, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	list, err := e.svc.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_TerminalStatesAreFinal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, b := e.seed(t, 0)

	first, err := e.svc.Create(ctx, u.ID, CreateRequest{Amount: 20000, BankID: b.ID})
	require.NoError(t, err)
	second, err := e.svc.Create(ctx, u.ID, CreateRequest{Amount: 30000, BankID: b.ID})
	require.NoError(t, err)

	_, err = e.svc.Approve(ctx, first.Deposit.ID, "admin", "")
	require.NoError(t, err)
	_, err = e.svc.Reject(ctx, second.Deposit.ID, "admin", "no transfer found")
	require.NoError(t, err)

	_, err = e.svc.Approve(ctx, first.Deposit.ID, "admin", "")
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
	_, err = e.svc.Reject(ctx, first.Deposit.ID, "admin", "")
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
	_, err = e.svc.Approve(ctx, second.Deposit.ID, "admin", "")
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)

	got, err := e.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.InDelta(t, 20000, got.Balance.Float(), 1e-9)

	rejected, err := e.svc.List(ctx, models.DepositRejected)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "no transfer found", rejected[0].AdminNote)

	mine, err := e.svc.ListForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestService_NotFound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Approve(ctx, "missing", "admin", "")
	assert.ErrorIs(t, err, services.ErrDepositNotFound)
	_, err = e.svc.Reject(ctx, "missing", "admin", "")
	assert.ErrorIs(t, err, services.ErrDepositNotFound)
}

func TestService_ConcurrentApproveCreditsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, b := e.seed(t, 0)

	created, err := e.svc.Create(ctx, u.ID, CreateRequest{Amount: 50000, BankID: b.ID})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 4)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.Approve(ctx, created.Deposit.ID, "admin", "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, repository.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)

	txs, err := e.txs.FindByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	got, err := e.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.InDelta(t, 50000, got.Balance.Float(), 1e-9)
}

func TestService_RecoverInterruptedApproval(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, b := e.seed(t, 0)

	created, err := e.svc.Create(ctx, u.ID, CreateRequest{Amount: 40000, BankID: b.ID})
	require.NoError(t, err)

	_, err = e.intents.Create(ctx, &models.Intent{
		Base:          models.Base{ID: models.IntentID(models.IntentDeposit, created.Deposit.ID)},
		Kind:          models.IntentDeposit,
		UserID:        u.ID,
		Delta:         40000,
		RefID:         created.Deposit.ID,
		TransactionID: "tx-recovered",
		ActorID:       "admin-2",
		AfterBalance:  40000,
		UserVersion:   u.Version,
		Stage:         models.StagePending,
	})
	require.NoError(t, err)

	done, err := e.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	d, err := e.deposits.FindByID(ctx, created.Deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DepositApproved, d.Status)
	assert.Equal(t, "admin-2", d.ApprovedBy)

	got, err := e.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.InDelta(t, 40000, got.Balance.Float(), 1e-9)
}

func TestService_RejectRefusedWhileApprovalUnfinished(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, b := e.seed(t, 0)

	created, err := e.svc.Create(ctx, u.ID, CreateRequest{Amount: 40000, BankID: b.ID})
	require.NoError(t, err)

	intentID := models.IntentID(models.IntentDeposit, created.Deposit.ID)
	_, err = e.intents.Create(ctx, &models.Intent{
		Base:          models.Base{ID: intentID},
		Kind:          models.IntentDeposit,
		UserID:        u.ID,
		Delta:         40000,
		RefID:         created.Deposit.ID,
		TransactionID: "tx-interrupted",
		ActorID:       "admin-2",
		AfterBalance:  40000,
		UserVersion:   u.Version,
		Stage:         models.StagePending,
	})
	require.NoError(t, err)
	_, err = e.users.AdjustBalance(ctx, u.ID, 40000, 0, repository.WithIntent(intentID))
	require.NoError(t, err)
	in, err := e.intents.FindByID(ctx, intentID)
	require.NoError(t, err)
	require.NoError(t, e.intents.Advance(ctx, in, models.StageBalanceApplied))

	_, err = e.svc.Reject(ctx, created.Deposit.ID, "admin-3", "no transfer")
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)

	d, err := e.deposits.FindByID(ctx, created.Deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DepositPending, d.Status)

	done, err := e.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	d, err = e.deposits.FindByID(ctx, created.Deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DepositApproved, d.Status)

	got, err := e.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.InDelta(t, 40000, got.Balance.Float(), 1e-9)

	open, err := e.intents.Open(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = e.svc.Reject(ctx, created.Deposit.ID, "admin-3", "too late")
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
}

func TestService_PublishFailureDoesNotFailCreate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, b := e.seed(t, 0)

	e.pub.ExpectedCalls = nil
	e.pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	created, err := e.svc.Create(ctx, u.ID, CreateRequest{Amount: 10000, BankID: b.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, created.Deposit.ID)
}
