package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/storage/kv"
)

// SettingsRepository единственная запись настроек сайта под ключом settings:main.
type SettingsRepository struct {
	repo *Repository[models.SiteSettings, *models.SiteSettings]
	mu   sync.Mutex
}

// NewSettingsRepository создаёт репозиторий настроек.
func NewSettingsRepository(store kv.Store) *SettingsRepository {
	return &SettingsRepository{repo: New[models.SiteSettings](store, "settings")}
}

// Get возвращает настройки, при первом чтении создавая их со значениями по умолчанию.
func (r *SettingsRepository) Get(ctx context.Context) (*models.SiteSettings, error) {
	const op = "repository.SettingsRepository.Get"
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.getOrCreateLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func (r *SettingsRepository) getOrCreateLocked(ctx context.Context) (*models.SiteSettings, error) {
	s, err := r.repo.FindByID(ctx, models.SettingsID)
	if err != nil {
		return nil, err
	}
	if s != nil {
		return s, nil
	}
	defaults := models.DefaultSiteSettings()
	return r.repo.Create(ctx, &defaults)
}

// Update накладывает JSON-патч на настройки верхним уровнем полей.
func (r *SettingsRepository) Update(ctx context.Context, patch []byte) (*models.SiteSettings, error) {
	const op = "repository.SettingsRepository.Update"
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.getOrCreateLocked(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s, err := r.repo.Patch(ctx, models.SettingsID, patch)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}
