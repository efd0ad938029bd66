// Package deposit ведёт заявки на пополнение баланса банковским переводом.
//
// Покупатель создаёт заявку и получает QR-код перевода с кодом назначения.
// Администратор сверяет поступление и подтверждает заявку, после чего баланс
// зачисляется через журнал намерений, либо отклоняет её.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/hackstore/internal/events"
	"github.com/magabrotheeeer/hackstore/internal/lib/keylock"
	"github.com/magabrotheeeer/hackstore/internal/lib/refcode"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/lib/vietqr"
	"github.com/magabrotheeeer/hackstore/internal/metrics"
	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/services"
	"github.com/magabrotheeeer/hackstore/internal/services/ledger"
	"github.com/magabrotheeeer/hackstore/internal/storage/repository"
)

// DefaultMethod способ пополнения по умолчанию.
const DefaultMethod = "bank_transfer"

// Repository хранилище заявок.
type Repository interface {
	Create(ctx context.Context, d *models.DepositRequest) (*models.DepositRequest, error)
	FindByID(ctx context.Context, id string) (*models.DepositRequest, error)
	FindByUser(ctx context.Context, userID string) ([]*models.DepositRequest, error)
	FindByStatus(ctx context.Context, status models.DepositStatus) ([]*models.DepositRequest, error)
	Transition(ctx context.Context, id string, to models.DepositStatus, mutate func(*models.DepositRequest)) (*models.DepositRequest, error)
}

// BankRepository банковские счета.
type BankRepository interface {
	FindByID(ctx context.Context, id string) (*models.BankAccount, error)
}

// UserFinder поиск пользователя.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Journal проводит изменения баланса.
type Journal interface {
	Apply(ctx context.Context, req ledger.Request) (*ledger.Outcome, error)
	Pending(ctx context.Context, kind models.IntentKind, refID string) (*models.Intent, error)
	Register(kind models.IntentKind, f ledger.Finalizer)
	Recover(ctx context.Context) (int, error)
}

// CreateRequest данные новой заявки.
type CreateRequest struct {
	Amount      int64
	Method      string
	Description string
	BankID      string
}

// Created созданная заявка вместе с реквизитами для перевода.
type Created struct {
	Deposit *models.DepositRequest `json:"deposit"`
	Bank    *models.BankAccount    `json:"bank"`
	QRURL   string                 `json:"qrUrl"`
}

// Approved результат подтверждения.
type Approved struct {
	Deposit     *models.DepositRequest `json:"deposit"`
	Transaction *models.Transaction    `json:"transaction"`
}

// Service сценарии пополнения баланса.
type Service struct {
	deposits   Repository
	banks      BankRepository
	users      UserFinder
	journal    Journal
	publisher  events.Publisher
	minDeposit int64
	locks      *keylock.Map
	log        *slog.Logger
	now        func() time.Time
}

// New создаёт сервис и регистрирует в журнале финализатор пополнения.
func New(deposits Repository, banks BankRepository, users UserFinder, journal Journal,
	publisher events.Publisher, minDeposit int64, log *slog.Logger) *Service {
	s := &Service{
		deposits:   deposits,
		banks:      banks,
		users:      users,
		journal:    journal,
		publisher:  publisher,
		minDeposit: minDeposit,
		locks:      keylock.New(),
		log:        log.With(slog.String("component", "deposit_service")),
		now:        func() time.Time { return time.Now().UTC() },
	}
	journal.Register(models.IntentDeposit, s.finalize)
	return s
}

// Create регистрирует заявку в статусе pending. Если описание не задано,
// в него записывается сгенерированный код назначения платежа.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*Created, error) {
	const op = "deposit.Create"
	if req.Amount < s.minDeposit {
		return nil, fmt.Errorf("%s: %w", op, services.ErrAmountTooSmall)
	}

	bank, err := s.banks.FindByID(ctx, req.BankID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if bank == nil || !bank.IsActive {
		return nil, fmt.Errorf("%s: %w", op, services.ErrBankUnavailable)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrUserNotFound)
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description, err = refcode.New()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	method := req.Method
	if method == "" {
		method = DefaultMethod
	}

	d, err := s.deposits.Create(ctx, &models.DepositRequest{
		UserID:      userID,
		Amount:      req.Amount,
		Method:      method,
		BankID:      bank.ID,
		Status:      models.DepositPending,
		Description: description,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("deposit request created",
		slog.String("deposit_id", d.ID),
		slog.String("user_id", userID),
		slog.Int64("amount", d.Amount),
	)
	s.publish(ctx, events.New(events.DepositCreated, userID, d))

	return &Created{
		Deposit: d,
		Bank:    bank,
		QRURL:   vietqr.ImageURL(bank.BankCode, bank.AccountNumber, d.Amount, d.Description, bank.AccountName),
	}, nil
}

// Approve зачисляет сумму заявки на баланс и переводит заявку в approved.
// Повторный вызов для заявки, чьё зачисление было прервано, доводит его до конца.
func (s *Service) Approve(ctx context.Context, depositID, adminID, note string) (*Approved, error) {
	const op = "deposit.Approve"
	unlock := s.locks.Lock(depositID)
	defer unlock()

	d, err := s.deposits.FindByID(ctx, depositID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if d == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrDepositNotFound)
	}
	if d.Status != models.DepositPending {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrInvalidTransition)
	}

	out, err := s.journal.Apply(ctx, ledger.Request{
		Kind:        models.IntentDeposit,
		UserID:      d.UserID,
		Delta:       float64(d.Amount),
		RefID:       d.ID,
		Description: fmt.Sprintf("Deposit %s", d.Description),
		ActorID:     adminID,
		Note:        note,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	approved, err := s.deposits.FindByID(ctx, depositID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.DepositDecision(string(models.DepositApproved))
	s.log.Info("deposit approved",
		slog.String("deposit_id", depositID),
		slog.String("admin_id", adminID),
		slog.String("transaction_id", out.Transaction.ID),
	)
	return &Approved{Deposit: approved, Transaction: out.Transaction}, nil
}

// finalize переводит заявку в approved после записи транзакции.
// Заявка, уже подтверждённая ранее, считается успешно завершённой.
func (s *Service) finalize(ctx context.Context, in *models.Intent, _ *models.Transaction) error {
	now := s.now()
	_, err := s.deposits.Transition(ctx, in.RefID, models.DepositApproved, func(d *models.DepositRequest) {
		d.ApprovedBy = in.ActorID
		d.ApprovedAt = &now
		d.AdminNote = in.Note
	})
	if errors.Is(err, repository.ErrInvalidTransition) {
		current, ferr := s.deposits.FindByID(ctx, in.RefID)
		if ferr == nil && current != nil && current.Status == models.DepositApproved {
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}
	s.publish(ctx, events.New(events.DepositApproved, in.UserID, map[string]any{
		"depositId": in.RefID,
		"amount":    in.Delta,
	}))
	return nil
}

// Reject отклоняет заявку без изменения баланса.
// Заявку с открытым намерением зачисления отклонить нельзя: его доведёт до конца Approve или Recover.
func (s *Service) Reject(ctx context.Context, depositID, adminID, note string) (*models.DepositRequest, error) {
	const op = "deposit.Reject"
	unlock := s.locks.Lock(depositID)
	defer unlock()

	in, err := s.journal.Pending(ctx, models.IntentDeposit, depositID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		s.log.Warn("deposit has an unfinished approval, reject refused",
			slog.String("deposit_id", depositID),
			slog.String("stage", string(in.Stage)),
		)
		return nil, fmt.Errorf("%s: %w", op, repository.ErrInvalidTransition)
	}

	now := s.now()
	d, err := s.deposits.Transition(ctx, depositID, models.DepositRejected, func(d *models.DepositRequest) {
		d.ApprovedBy = adminID
		d.ApprovedAt = &now
		d.AdminNote = note
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if d == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrDepositNotFound)
	}

	metrics.DepositDecision(string(models.DepositRejected))
	s.log.Info("deposit rejected", slog.String("deposit_id", depositID), slog.String("admin_id", adminID))
	s.publish(ctx, events.New(events.DepositRejected, d.UserID, map[string]any{
		"depositId": d.ID,
		"note":      note,
	}))
	return d, nil
}

// Recover доводит до конца прерванные зачисления и другие открытые операции журнала.
func (s *Service) Recover(ctx context.Context) (int, error) {
	return s.journal.Recover(ctx)
}

// ListForUser заявки пользователя, новые первыми.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*models.DepositRequest, error) {
	const op = "deposit.ListForUser"
	out, err := s.deposits.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// List заявки для админки с фильтром по статусу, пустой статус означает все.
func (s *Service) List(ctx context.Context, status models.DepositStatus) ([]*models.DepositRequest, error) {
	const op = "deposit.List"
	out, err := s.deposits.FindByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn("cannot publish event", slog.String("type", string(e.Type)), sl.Err(err))
	}
}
