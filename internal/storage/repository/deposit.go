package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/storage/kv"
)

// DepositRepository заявки на пополнение. Заявка в конечном статусе
// (approved, rejected) не может сменить статус ни через Transition, ни через Update/Patch.
type DepositRepository struct {
	*Repository[models.DepositRequest, *models.DepositRequest]
}

// NewDepositRepository создаёт репозиторий заявок.
func NewDepositRepository(store kv.Store) *DepositRepository {
	repo := New[models.DepositRequest](store, "deposit")
	repo.guard = func(old, updated *models.DepositRequest) error {
		if old.Status.Terminal() && updated.Status != old.Status {
			return fmt.Errorf("%s -> %s: %w", old.Status, updated.Status, ErrInvalidTransition)
		}
		if old.Status == models.DepositPending && updated.Status != old.Status && !updated.Status.Terminal() {
			return fmt.Errorf("%s -> %s: %w", old.Status, updated.Status, ErrInvalidTransition)
		}
		return nil
	}
	return &DepositRepository{Repository: repo}
}

// Transition переводит заявку из pending в конечный статус to и применяет mutate.
// Заявка не в pending даёт ErrInvalidTransition. Нет заявки: (nil, nil).
func (r *DepositRepository) Transition(ctx context.Context, id string, to models.DepositStatus, mutate func(*models.DepositRequest)) (*models.DepositRequest, error) {
	const op = "repository.DepositRepository.Transition"
	if !to.Terminal() {
		return nil, fmt.Errorf("%s: target %q: %w", op, to, ErrInvalidTransition)
	}
	d, err := r.Update(ctx, id, func(d *models.DepositRequest) error {
		if d.Status != models.DepositPending {
			return fmt.Errorf("%s -> %s: %w", d.Status, to, ErrInvalidTransition)
		}
		d.Status = to
		if mutate != nil {
			mutate(d)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

// FindByUser заявки пользователя, новые первыми.
func (r *DepositRepository) FindByUser(ctx context.Context, userID string) ([]*models.DepositRequest, error) {
	out, err := r.Find(ctx, func(d *models.DepositRequest) bool { return d.UserID == userID })
	if err != nil {
		return nil, err
	}
	newestFirst(out)
	return out, nil
}

// FindByStatus заявки с указанным статусом, пустой статус означает все. Новые первыми.
func (r *DepositRepository) FindByStatus(ctx context.Context, status models.DepositStatus) ([]*models.DepositRequest, error) {
	out, err := r.Find(ctx, func(d *models.DepositRequest) bool { return status == "" || d.Status == status })
	if err != nil {
		return nil, err
	}
	newestFirst(out)
	return out, nil
}
