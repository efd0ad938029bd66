// Package ledger проводит изменения баланса через журнал намерений.
//
// Перед изменением баланса пишется намерение intent:<kind>-<refID>. Дальше оно проходит
// стадии pending -> balance_applied -> ledger_written, после чего выполняется
// финализатор вида операции и намерение удаляется. Recover доигрывает незавершённые
// намерения после падения процесса.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/hackstore/internal/events"
	"github.com/magabrotheeeer/hackstore/internal/lib/keylock"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/metrics"
	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/services"
	"github.com/magabrotheeeer/hackstore/internal/storage/repository"
)

// UserRepository пользователи и изменение баланса.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	AdjustBalance(ctx context.Context, id string, delta float64, expectedVersion int64, opts ...repository.AdjustOption) (*repository.BalanceChange, error)
}

// TransactionRepository журнал транзакций.
type TransactionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Transaction, error)
	Create(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)
}

// IntentRepository хранилище намерений.
type IntentRepository interface {
	Create(ctx context.Context, in *models.Intent) (*models.Intent, error)
	FindByID(ctx context.Context, id string) (*models.Intent, error)
	Advance(ctx context.Context, in *models.Intent, stage models.IntentStage) error
	Delete(ctx context.Context, id string) (bool, error)
	Open(ctx context.Context) ([]*models.Intent, error)
}

// Finalizer завершает операцию после записи транзакции: например, помечает заявку
// подтверждённой. Должен быть идемпотентным, так как может быть вызван повторно.
type Finalizer func(ctx context.Context, in *models.Intent, tx *models.Transaction) error

// Request операция над балансом.
type Request struct {
	Kind        models.IntentKind
	UserID      string
	Delta       float64
	RefID       string
	SubjectID   string
	Description string
	ActorID     string
	Note        string
}

// Outcome результат завершённой операции.
type Outcome struct {
	Intent      *models.Intent
	Transaction *models.Transaction
}

// Journal проводит операции через журнал намерений.
type Journal struct {
	users      UserRepository
	txs        TransactionRepository
	intents    IntentRepository
	publisher  events.Publisher
	finalizers map[models.IntentKind]Finalizer
	locks      *keylock.Map
	tolerance  float64
	log        *slog.Logger
	newID      func() string
}

// New создаёт журнал. tolerance погрешность сравнения балансов при восстановлении.
func New(users UserRepository, txs TransactionRepository, intents IntentRepository,
	publisher events.Publisher, tolerance float64, log *slog.Logger) *Journal {
	return &Journal{
		users:      users,
		txs:        txs,
		intents:    intents,
		publisher:  publisher,
		finalizers: make(map[models.IntentKind]Finalizer),
		locks:      keylock.New(),
		tolerance:  tolerance,
		log:        log.With(slog.String("component", "ledger")),
		newID:      uuid.NewString,
	}
}

// Register задаёт финализатор для вида операции. Вызывается при сборке приложения.
func (j *Journal) Register(kind models.IntentKind, f Finalizer) {
	j.finalizers[kind] = f
}

// Pending открытое намерение для пары (kind, refID) или nil.
func (j *Journal) Pending(ctx context.Context, kind models.IntentKind, refID string) (*models.Intent, error) {
	const op = "ledger.Pending"
	in, err := j.intents.FindByID(ctx, models.IntentID(kind, refID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return in, nil
}

// Apply проводит операцию. Если намерение для той же пары (kind, refID) уже открыто,
// продолжает его вместо создания нового.
func (j *Journal) Apply(ctx context.Context, req Request) (*Outcome, error) {
	const op = "ledger.Apply"
	if req.RefID == "" || req.UserID == "" {
		return nil, fmt.Errorf("%s: user and reference are required", op)
	}
	if math.IsNaN(req.Delta) || math.IsInf(req.Delta, 0) || req.Delta == 0 {
		return nil, fmt.Errorf("%s: delta must be finite and non-zero", op)
	}

	id := models.IntentID(req.Kind, req.RefID)
	unlock := j.locks.Lock(id)
	defer unlock()

	in, err := j.intents.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		j.log.Info("resuming open intent", slog.String("intent_id", id), slog.String("stage", string(in.Stage)))
		out, err := j.resume(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return out, nil
	}

	user, err := j.users.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrUserNotFound)
	}
	before := user.Balance.Float()
	if before+req.Delta < -j.tolerance {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrInsufficientBalance)
	}

	in, err = j.intents.Create(ctx, &models.Intent{
		Base:          models.Base{ID: id},
		Kind:          req.Kind,
		UserID:        req.UserID,
		Delta:         req.Delta,
		RefID:         req.RefID,
		SubjectID:     req.SubjectID,
		TransactionID: j.newID(),
		Description:   req.Description,
		ActorID:       req.ActorID,
		Note:          req.Note,
		BeforeBalance: before,
		AfterBalance:  before + req.Delta,
		UserVersion:   user.Version,
		Stage:         models.StagePending,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	change, err := j.users.AdjustBalance(ctx, req.UserID, req.Delta, user.Version, repository.WithIntent(id))
	if errors.Is(err, repository.ErrVersionConflict) {
		change, err = j.users.AdjustBalance(ctx, req.UserID, req.Delta, 0, repository.WithIntent(id))
	}
	if err == nil && change == nil {
		err = services.ErrUserNotFound
	}
	if err != nil {
		j.abort(ctx, in, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := j.markApplied(ctx, in, change); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out, err := j.resume(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// abort удаляет намерение, баланс по которому не изменялся.
func (j *Journal) abort(ctx context.Context, in *models.Intent, cause error) {
	if _, err := j.intents.Delete(ctx, in.ID); err != nil {
		j.log.Error("cannot delete aborted intent", slog.String("intent_id", in.ID), sl.Err(err))
		return
	}
	j.log.Info("intent aborted", slog.String("intent_id", in.ID), sl.Err(cause))
}

func (j *Journal) markApplied(ctx context.Context, in *models.Intent, change *repository.BalanceChange) error {
	in.BeforeBalance = change.Before
	in.AfterBalance = change.After
	return j.intents.Advance(ctx, in, models.StageBalanceApplied)
}

// resume доводит намерение до конца с его текущей стадии.
func (j *Journal) resume(ctx context.Context, in *models.Intent) (*Outcome, error) {
	if in.Stage == models.StagePending {
		applied, err := j.recoverPending(ctx, in)
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, repository.ErrInsufficientBalance
		}
	}

	var tx *models.Transaction
	if in.Stage == models.StageBalanceApplied {
		written, err := j.writeLedger(ctx, in)
		if err != nil {
			return nil, err
		}
		tx = written
		if err := j.intents.Advance(ctx, in, models.StageLedgerWritten); err != nil {
			return nil, err
		}
	}

	if tx == nil {
		found, err := j.txs.FindByID(ctx, in.TransactionID)
		if err != nil {
			return nil, err
		}
		if found == nil {
			written, err := j.writeLedger(ctx, in)
			if err != nil {
				return nil, err
			}
			found = written
		}
		tx = found
	}

	if f, ok := j.finalizers[in.Kind]; ok {
		if err := f(ctx, in, tx); err != nil {
			return nil, fmt.Errorf("finalize %s: %w", in.ID, err)
		}
	}
	if _, err := j.intents.Delete(ctx, in.ID); err != nil {
		return nil, err
	}

	if err := j.publisher.Publish(ctx, events.New(events.BalanceUpdated, in.UserID, map[string]any{
		"balance":       tx.AfterBalance,
		"transactionId": tx.ID,
	})); err != nil {
		j.log.Warn("cannot publish balance update", slog.String("user_id", in.UserID), sl.Err(err))
	}
	j.log.Info("balance operation completed",
		slog.String("intent_id", in.ID),
		slog.String("user_id", in.UserID),
		slog.Float64("before", tx.BeforeBalance),
		slog.Float64("after", tx.AfterBalance),
	)
	return &Outcome{Intent: in, Transaction: tx}, nil
}

// recoverPending решает, применялось ли изменение баланса для намерения в стадии pending.
// Изменение применено, если запись пользователя несёт отметку намерения: она пишется
// вместе с балансом. Иначе дельта применяется к текущему балансу. Возвращает false,
// если намерение снято из-за нехватки средств.
func (j *Journal) recoverPending(ctx context.Context, in *models.Intent) (bool, error) {
	user, err := j.users.FindByID(ctx, in.UserID)
	if err != nil {
		return false, err
	}
	if user == nil {
		j.abort(ctx, in, services.ErrUserNotFound)
		return false, services.ErrUserNotFound
	}

	if user.HasAppliedIntent(in.ID) {
		j.log.Info("intent balance already applied", slog.String("intent_id", in.ID))
		return true, j.intents.Advance(ctx, in, models.StageBalanceApplied)
	}

	change, err := j.users.AdjustBalance(ctx, in.UserID, in.Delta, 0, repository.WithIntent(in.ID))
	if errors.Is(err, repository.ErrInsufficientBalance) {
		j.abort(ctx, in, err)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if change == nil {
		j.abort(ctx, in, services.ErrUserNotFound)
		return false, services.ErrUserNotFound
	}
	return true, j.markApplied(ctx, in, change)
}

// writeLedger создаёт транзакцию с заранее выделенным идентификатором.
// Повторный вызов возвращает уже записанную транзакцию.
func (j *Journal) writeLedger(ctx context.Context, in *models.Intent) (*models.Transaction, error) {
	existing, err := j.txs.FindByID(ctx, in.TransactionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return j.txs.Create(ctx, &models.Transaction{
		Base:             models.Base{ID: in.TransactionID},
		UserID:           in.UserID,
		Type:             in.Kind.TransactionType(),
		Amount:           math.Abs(in.Delta),
		BeforeBalance:    in.BeforeBalance,
		AfterBalance:     in.AfterBalance,
		Description:      in.Description,
		RelatedPaymentID: in.RefID,
	})
}

// Recover доигрывает все открытые намерения. Ошибка одного намерения не
// останавливает обработку остальных. Возвращает количество завершённых.
func (j *Journal) Recover(ctx context.Context) (int, error) {
	const op = "ledger.Recover"
	open, err := j.intents.Open(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	var (
		done int
		errs []error
	)
	for _, in := range open {
		resumed, err := j.recoverOne(ctx, in.ID)
		if err != nil {
			if errors.Is(err, repository.ErrInsufficientBalance) || errors.Is(err, services.ErrUserNotFound) {
				continue
			}
			j.log.Error("intent recovery failed", slog.String("intent_id", in.ID), sl.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", in.ID, err))
			continue
		}
		if !resumed {
			continue
		}
		done++
		metrics.IntentRecovered()
	}
	if len(open) > 0 {
		j.log.Info("intent recovery finished", slog.Int("open", len(open)), slog.Int("completed", done))
	}
	if len(errs) > 0 {
		return done, fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}
	return done, nil
}

// recoverOne перечитывает намерение под блокировкой: пока Recover ждал,
// его мог завершить параллельный Apply.
func (j *Journal) recoverOne(ctx context.Context, id string) (bool, error) {
	unlock := j.locks.Lock(id)
	defer unlock()

	in, err := j.intents.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if in == nil {
		return false, nil
	}
	if _, err := j.resume(ctx, in); err != nil {
		return false, err
	}
	return true, nil
}
