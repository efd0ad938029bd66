package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/storage/kv"
)

// IntentRepository журнал намерений изменения баланса (ключи intent:<id>).
type IntentRepository struct {
	*Repository[models.Intent, *models.Intent]
}

// NewIntentRepository создаёт журнал намерений.
func NewIntentRepository(store kv.Store) *IntentRepository {
	return &IntentRepository{Repository: New[models.Intent](store, "intent")}
}

// Open незавершённые намерения в порядке создания.
func (r *IntentRepository) Open(ctx context.Context) ([]*models.Intent, error) {
	return r.FindAll(ctx)
}

// Advance сохраняет новую стадию намерения вместе с изменёнными полями.
func (r *IntentRepository) Advance(ctx context.Context, in *models.Intent, stage models.IntentStage) error {
	const op = "repository.IntentRepository.Advance"
	in.Stage = stage
	in.UpdatedAt = r.now()
	if err := r.write(ctx, in); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
