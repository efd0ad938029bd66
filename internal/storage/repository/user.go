package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/magabrotheeeer/hackstore/internal/config"
	"github.com/magabrotheeeer/hackstore/internal/lib/keylock"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/metrics"
	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/storage"
	"github.com/magabrotheeeer/hackstore/internal/storage/kv"
)

const usernameIndexPrefix = "idx:user:username:"

// BalanceChange результат изменения баланса на дельту.
type BalanceChange struct {
	User   *models.User
	Before float64
	After  float64
}

// UserRepository репозиторий пользователей с индексом по username и
// протоколом записи баланса с проверкой чтением.
type UserRepository struct {
	*Repository[models.User, *models.User]
	store       kv.Store
	locks       *keylock.Map
	settleDelay time.Duration
	attempts    int
	tolerance   float64
	log         *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(store kv.Store, cfg config.Wallet, log *slog.Logger) *UserRepository {
	attempts := cfg.VerifyAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &UserRepository{
		Repository:  New[models.User](store, "user"),
		store:       store,
		locks:       keylock.New(),
		settleDelay: cfg.SettleDelay,
		attempts:    attempts,
		tolerance:   cfg.Tolerance,
		log:         log.With(slog.String("component", "user_repository")),
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func usernameKey(username string) string {
	return usernameIndexPrefix + strings.ToLower(strings.TrimSpace(username))
}

func (r *UserRepository) setUsernameIndex(ctx context.Context, username, id string) error {
	payload, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, usernameKey(username), payload)
}

// Create сохраняет пользователя и индекс username. Баланс приводится к допустимому значению.
// Проверка занятости username и запись идут под блокировкой индекса: занятый даёт ErrUsernameTaken.
func (r *UserRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	const op = "repository.UserRepository.Create"
	unlock := r.locks.Lock(usernameKey(u.Username))
	defer unlock()

	existing, err := r.FindByUsername(ctx, u.Username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
	}
	u.Balance = models.Balance(models.CoerceBalance(u.Balance))
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if u.Version == 0 {
		u.Version = 1
	}
	created, err := r.Repository.Create(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := r.setUsernameIndex(ctx, created.Username, created.ID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// FindByUsername ищет пользователя без учёта регистра. Нет пользователя: (nil, nil).
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "repository.UserRepository.FindByUsername"
	raw, err := r.store.Get(ctx, usernameKey(username))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, nil
	}
	u, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if u == nil || !strings.EqualFold(u.Username, strings.TrimSpace(username)) {
		return nil, nil
	}
	return u, nil
}

// Delete удаляет пользователя вместе с индексом username.
func (r *UserRepository) Delete(ctx context.Context, id string) (bool, error) {
	const op = "repository.UserRepository.Delete"
	unlock := r.locks.Lock(id)
	defer unlock()

	u, err := r.FindByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if u == nil {
		return false, nil
	}
	if err := r.store.Del(ctx, usernameKey(u.Username)); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return r.Repository.Delete(ctx, id)
}

// UpdateUser накладывает патч на пользователя. Если в патче есть balance, он
// приводится по правилу Number(x) || 0, а запись проходит протокол проверки чтением.
// Нет пользователя: (nil, nil).
func (r *UserRepository) UpdateUser(ctx context.Context, id string, patch map[string]any) (*models.User, error) {
	const op = "repository.UserRepository.UpdateUser"
	unlock := r.locks.Lock(id)
	defer unlock()

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if current == nil {
		return nil, nil
	}

	fields := make(map[string]json.RawMessage, len(patch))
	for k, v := range patch {
		if k == "balance" {
			v = models.CoerceBalance(v)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		fields[k] = raw
	}
	delete(fields, "version")

	merged, err := mergeJSON(current, fields)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var updated models.User
	if err := json.Unmarshal(merged, &updated); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	updated.ID = current.ID
	updated.CreatedAt = current.CreatedAt
	updated.Version = current.Version + 1
	updated.UpdatedAt = r.now()

	if !strings.EqualFold(current.Username, updated.Username) {
		unlockName := r.locks.Lock(usernameKey(updated.Username))
		defer unlockName()
		owner, err := r.FindByUsername(ctx, updated.Username)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if owner != nil && owner.ID != current.ID {
			return nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
		}
		if err := r.store.Del(ctx, usernameKey(current.Username)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := r.setUsernameIndex(ctx, updated.Username, updated.ID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	saved, err := r.writeVerified(ctx, &updated)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return saved, nil
}

// SetBalance записывает баланс пользователя через UpdateUser.
func (r *UserRepository) SetBalance(ctx context.Context, id string, value any) (*models.User, error) {
	return r.UpdateUser(ctx, id, map[string]any{"balance": value})
}

type adjustOptions struct {
	intentID string
}

// AdjustOption настраивает AdjustBalance.
type AdjustOption func(*adjustOptions)

// WithIntent помечает изменение баланса как применение намерения id.
func WithIntent(id string) AdjustOption {
	return func(o *adjustOptions) { o.intentID = id }
}

// AdjustBalance изменяет баланс на delta под блокировкой пользователя.
// Ненулевой expectedVersion должен совпасть с сохранённой версией, иначе ErrVersionConflict.
// Результат ниже нуля даёт ErrInsufficientBalance. Нет пользователя: (nil, nil).
func (r *UserRepository) AdjustBalance(ctx context.Context, id string, delta float64, expectedVersion int64, opts ...AdjustOption) (*BalanceChange, error) {
	const op = "repository.UserRepository.AdjustBalance"
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return nil, fmt.Errorf("%s: delta must be finite", op)
	}
	unlock := r.locks.Lock(id)
	defer unlock()

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if current == nil {
		return nil, nil
	}
	if expectedVersion != 0 && expectedVersion != current.Version {
		return nil, fmt.Errorf("%s: %w", op, ErrVersionConflict)
	}

	before := current.Balance.Float()
	after := before + delta
	if after < 0 {
		if after > -r.tolerance {
			after = 0
		} else {
			return nil, fmt.Errorf("%s: %w", op, ErrInsufficientBalance)
		}
	}

	var o adjustOptions
	for _, opt := range opts {
		opt(&o)
	}

	updated := *current
	updated.Balance = models.Balance(after)
	updated.Version = current.Version + 1
	updated.UpdatedAt = r.now()
	if o.intentID != "" {
		updated.AppliedIntents = appendIntent(current.AppliedIntents, o.intentID)
	}

	saved, err := r.writeVerified(ctx, &updated)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &BalanceChange{User: saved, Before: before, After: after}, nil
}

// appendIntent добавляет id в конец списка, оставляя не больше MaxAppliedIntents последних.
func appendIntent(list []string, id string) []string {
	out := make([]string, 0, len(list)+1)
	out = append(out, list...)
	out = append(out, id)
	if len(out) > models.MaxAppliedIntents {
		out = out[len(out)-models.MaxAppliedIntents:]
	}
	return out
}

// writeVerified пишет пользователя, ждёт settleDelay и перечитывает запись.
// Если баланс расходится с записанным больше чем на tolerance, запись повторяется.
// После последней попытки возвращается последнее прочитанное значение.
func (r *UserRepository) writeVerified(ctx context.Context, u *models.User) (*models.User, error) {
	intended := u.Balance.Float()
	if err := r.write(ctx, u); err != nil {
		return nil, err
	}

	last := u
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := r.sleep(ctx, r.settleDelay); err != nil {
			return nil, err
		}
		got, err := r.FindByID(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		if got != nil {
			last = got
			if math.Abs(got.Balance.Float()-intended) <= r.tolerance {
				if attempt == 1 {
					metrics.BalanceRepair("ok")
				} else {
					metrics.BalanceRepair("repaired")
				}
				return got, nil
			}
		}
		r.log.Debug("balance read-back mismatch, rewriting",
			slog.String("user_id", u.ID),
			slog.Int("attempt", attempt),
			slog.Float64("intended", intended),
		)
		if attempt < r.attempts {
			if err := r.write(ctx, u); err != nil {
				return nil, err
			}
		}
	}

	metrics.BalanceRepair("mismatch")
	r.log.Warn("balance did not converge after verification",
		slog.String("user_id", u.ID),
		slog.Float64("intended", intended),
		slog.Float64("observed", last.Balance.Float()),
		sl.Op("repository.UserRepository.writeVerified"),
	)
	return last, nil
}
