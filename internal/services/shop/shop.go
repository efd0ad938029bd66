// Package shop продаёт пакеты за баланс кошелька и оформляет возвраты.
package shop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/hackstore/internal/events"
	"github.com/magabrotheeeer/hackstore/internal/lib/keylock"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/services"
	"github.com/magabrotheeeer/hackstore/internal/services/ledger"
)

// PackageFinder каталог пакетов.
type PackageFinder interface {
	FindByID(ctx context.Context, id string) (*models.Package, error)
}

// UserRepository пользователи.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, patch map[string]any) (*models.User, error)
}

// TransactionRepository журнал транзакций.
type TransactionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Transaction, error)
	FindByUser(ctx context.Context, userID string) ([]*models.Transaction, error)
	FindRelated(ctx context.Context, relatedID string, typ models.TransactionType) ([]*models.Transaction, error)
}

// Journal проводит изменения баланса.
type Journal interface {
	Apply(ctx context.Context, req ledger.Request) (*ledger.Outcome, error)
	Register(kind models.IntentKind, f ledger.Finalizer)
}

// Purchase результат покупки.
type Purchase struct {
	Package     *models.Package     `json:"package"`
	Transaction *models.Transaction `json:"transaction"`
	Balance     float64             `json:"balance"`
}

// Service покупки и возвраты.
type Service struct {
	packages  PackageFinder
	users     UserRepository
	txs       TransactionRepository
	journal   Journal
	publisher events.Publisher
	refunds   *keylock.Map
	log       *slog.Logger
	now       func() time.Time
}

// New создаёт сервис и регистрирует финализатор покупки.
func New(packages PackageFinder, users UserRepository, txs TransactionRepository, journal Journal,
	publisher events.Publisher, log *slog.Logger) *Service {
	s := &Service{
		packages:  packages,
		users:     users,
		txs:       txs,
		journal:   journal,
		publisher: publisher,
		refunds:   keylock.New(),
		log:       log.With(slog.String("component", "shop_service")),
		now:       func() time.Time { return time.Now().UTC() },
	}
	journal.Register(models.IntentPurchase, s.finalizePurchase)
	return s
}

// Purchase списывает цену пакета с баланса и делает пакет текущим у пользователя.
// Недостаточный баланс даёт repository.ErrInsufficientBalance.
func (s *Service) Purchase(ctx context.Context, userID, packageID string) (*Purchase, error) {
	const op = "shop.Purchase"
	pkg, err := s.packages.FindByID(ctx, packageID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if pkg == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrPackageNotFound)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrUserNotFound)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%s: %w", op, services.ErrUserInactive)
	}
	if pkg.Price <= 0 {
		return nil, fmt.Errorf("%s: package %s has no price: %w", op, pkg.ID, services.ErrPackageNotFound)
	}

	out, err := s.journal.Apply(ctx, ledger.Request{
		Kind:        models.IntentPurchase,
		UserID:      userID,
		Delta:       -float64(pkg.Price),
		RefID:       uuid.NewString(),
		SubjectID:   pkg.ID,
		Description: fmt.Sprintf("Purchase %s", pkg.Name),
		ActorID:     userID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("package purchased",
		slog.String("user_id", userID),
		slog.String("package_id", pkg.ID),
		slog.Int64("price", pkg.Price),
	)
	s.publish(ctx, events.New(events.PackagePurchased, userID, map[string]any{
		"packageId":     pkg.ID,
		"transactionId": out.Transaction.ID,
	}))
	return &Purchase{Package: pkg, Transaction: out.Transaction, Balance: out.Transaction.AfterBalance}, nil
}

func (s *Service) finalizePurchase(ctx context.Context, in *models.Intent, _ *models.Transaction) error {
	updated, err := s.users.UpdateUser(ctx, in.UserID, map[string]any{
		"currentPackage":     in.SubjectID,
		"packagePurchasedAt": s.now(),
	})
	if err != nil {
		return err
	}
	if updated == nil {
		return services.ErrUserNotFound
	}
	return nil
}

// Refund возвращает на баланс сумму покупки. Возврат возможен один раз
// и только для транзакций типа purchase.
func (s *Service) Refund(ctx context.Context, transactionID, adminID, reason string) (*models.Transaction, error) {
	const op = "shop.Refund"
	unlock := s.refunds.Lock(transactionID)
	defer unlock()

	orig, err := s.txs.FindByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if orig == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrTransactionNotFound)
	}
	if orig.Type != models.TransactionPurchase || orig.Amount <= 0 {
		return nil, fmt.Errorf("%s: %w", op, services.ErrNotRefundable)
	}
	related, err := s.txs.FindRelated(ctx, orig.ID, models.TransactionRefund)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(related) > 0 {
		return nil, fmt.Errorf("%s: %w", op, services.ErrAlreadyRefunded)
	}

	description := "Refund " + orig.Description
	if reason != "" {
		description += ": " + reason
	}
	out, err := s.journal.Apply(ctx, ledger.Request{
		Kind:        models.IntentRefund,
		UserID:      orig.UserID,
		Delta:       orig.Amount,
		RefID:       orig.ID,
		Description: description,
		ActorID:     adminID,
		Note:        reason,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("transaction refunded",
		slog.String("transaction_id", orig.ID),
		slog.String("refund_id", out.Transaction.ID),
		slog.String("admin_id", adminID),
	)
	s.publish(ctx, events.New(events.TransactionRefunded, orig.UserID, map[string]any{
		"transactionId": orig.ID,
		"refundId":      out.Transaction.ID,
		"amount":        orig.Amount,
	}))
	return out.Transaction, nil
}

// History транзакции пользователя, новые первыми.
func (s *Service) History(ctx context.Context, userID string) ([]*models.Transaction, error) {
	const op = "shop.History"
	out, err := s.txs.FindByUser(ctx, userID)
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
