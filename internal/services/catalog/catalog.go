// Package catalog управляет содержимым витрины: пакетами, банковскими счетами и настройками сайта.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/services"
)

// Store CRUD над одной сущностью.
type Store[PT any] interface {
	Create(ctx context.Context, v PT) (PT, error)
	FindByID(ctx context.Context, id string) (PT, error)
	FindAll(ctx context.Context) ([]PT, error)
	Patch(ctx context.Context, id string, patch []byte) (PT, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// BankStore счета с выборкой активных.
type BankStore interface {
	Store[*models.BankAccount]
	FindActive(ctx context.Context) ([]*models.BankAccount, error)
}

// SettingsStore настройки сайта.
type SettingsStore interface {
	Get(ctx context.Context) (*models.SiteSettings, error)
	Update(ctx context.Context, patch []byte) (*models.SiteSettings, error)
}

// Service операции каталога.
type Service struct {
	packages Store[*models.Package]
	banks    BankStore
	settings SettingsStore
	log      *slog.Logger
}

// New создаёт сервис каталога.
func New(packages Store[*models.Package], banks BankStore, settings SettingsStore, log *slog.Logger) *Service {
	return &Service{
		packages: packages,
		banks:    banks,
		settings: settings,
		log:      log.With(slog.String("component", "catalog_service")),
	}
}

// Packages все пакеты в порядке добавления.
func (s *Service) Packages(ctx context.Context) ([]*models.Package, error) {
	const op = "catalog.Packages"
	out, err := s.packages.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// Package пакет по идентификатору.
func (s *Service) Package(ctx context.Context, id string) (*models.Package, error) {
	const op = "catalog.Package"
	p, err := s.packages.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrPackageNotFound)
	}
	return p, nil
}

// CreatePackage добавляет пакет. Платформа по умолчанию all, риск бана none.
func (s *Service) CreatePackage(ctx context.Context, p *models.Package) (*models.Package, error) {
	const op = "catalog.CreatePackage"
	if p.Platform == "" {
		p.Platform = models.PlatformAll
	}
	if p.BanRisk == "" {
		p.BanRisk = models.BanRiskNone
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	created, err := s.packages.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("package created", slog.String("package_id", created.ID), slog.String("name", created.Name))
	return created, nil
}

// UpdatePackage накладывает патч на пакет.
func (s *Service) UpdatePackage(ctx context.Context, id string, patch json.RawMessage) (*models.Package, error) {
	const op = "catalog.UpdatePackage"
	p, err := s.packages.Patch(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrPackageNotFound)
	}
	return p, nil
}

// DeletePackage удаляет пакет. У пользователей ссылка currentPackage остаётся как есть.
func (s *Service) DeletePackage(ctx context.Context, id string) error {
	const op = "catalog.DeletePackage"
	ok, err := s.packages.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, services.ErrPackageNotFound)
	}
	s.log.Info("package deleted", slog.String("package_id", id))
	return nil
}

// Banks счета: для витрины только активные, для админки все.
func (s *Service) Banks(ctx context.Context, activeOnly bool) ([]*models.BankAccount, error) {
	const op = "catalog.Banks"
	var (
		out []*models.BankAccount
		err error
	)
	if activeOnly {
		out, err = s.banks.FindActive(ctx)
	} else {
		out, err = s.banks.FindAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// CreateBank добавляет счёт.
func (s *Service) CreateBank(ctx context.Context, b *models.BankAccount) (*models.BankAccount, error) {
	const op = "catalog.CreateBank"
	created, err := s.banks.Create(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("bank account created", slog.String("bank_id", created.ID), slog.String("bank", created.BankCode))
	return created, nil
}

// UpdateBank накладывает патч на счёт.
func (s *Service) UpdateBank(ctx context.Context, id string, patch json.RawMessage) (*models.BankAccount, error) {
	const op = "catalog.UpdateBank"
	b, err := s.banks.Patch(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if b == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrBankNotFound)
	}
	return b, nil
}

// DeleteBank удаляет счёт.
func (s *Service) DeleteBank(ctx context.Context, id string) error {
	const op = "catalog.DeleteBank"
	ok, err := s.banks.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, services.ErrBankNotFound)
	}
	s.log.Info("bank account deleted", slog.String("bank_id", id))
	return nil
}

// Settings настройки сайта.
func (s *Service) Settings(ctx context.Context) (*models.SiteSettings, error) {
	const op = "catalog.Settings"
	out, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// UpdateSettings накладывает патч на настройки сайта.
func (s *Service) UpdateSettings(ctx context.Context, patch json.RawMessage) (*models.SiteSettings, error) {
	const op = "catalog.UpdateSettings"
	out, err := s.settings.Update(ctx, patch)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("site settings updated")
	return out, nil
}
