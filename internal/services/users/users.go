// Package users администрирование пользователей: просмотр, правка профиля,
// роли, активности и баланса, удаление.
package users

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/services"
)

// Repository хранилище пользователей.
type Repository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindAll(ctx context.Context) ([]*models.User, error)
	UpdateUser(ctx context.Context, id string, patch map[string]any) (*models.User, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Update изменяемые администратором поля. nil означает "не менять".
// Balance принимает любое JSON-значение и приводится хранилищем к числу.
type Update struct {
	Name           *string
	Role           *models.Role
	IsActive       *bool
	Balance        any
	CurrentPackage *string
	ClearPackage   bool
}

// Service админские операции над пользователями.
type Service struct {
	users Repository
	log   *slog.Logger
}

// New создаёт сервис.
func New(users Repository, log *slog.Logger) *Service {
	return &Service{users: users, log: log.With(slog.String("component", "users_service"))}
}

// List все пользователи без хэшей паролей.
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	const op = "users.List"
	all, err := s.users.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := make([]models.User, 0, len(all))
	for _, u := range all {
		out = append(out, u.Sanitized())
	}
	return out, nil
}

// Get пользователь без хэша пароля.
func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	const op = "users.Get"
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if u == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrUserNotFound)
	}
	sanitized := u.Sanitized()
	return &sanitized, nil
}

// Update применяет правку администратора. Пустая правка возвращает пользователя без записи.
func (s *Service) Update(ctx context.Context, id, adminID string, upd Update) (*models.User, error) {
	const op = "users.Update"
	patch := make(map[string]any)
	if upd.Name != nil {
		patch["name"] = *upd.Name
	}
	if upd.Role != nil {
		patch["role"] = *upd.Role
	}
	if upd.IsActive != nil {
		patch["isActive"] = *upd.IsActive
	}
	if upd.Balance != nil {
		patch["balance"] = upd.Balance
	}
	switch {
	case upd.ClearPackage:
		patch["currentPackage"] = nil
	case upd.CurrentPackage != nil:
		patch["currentPackage"] = *upd.CurrentPackage
	}
	if len(patch) == 0 {
		return s.Get(ctx, id)
	}

	u, err := s.users.UpdateUser(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if u == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrUserNotFound)
	}

	attrs := []any{slog.String("user_id", id), slog.String("admin_id", adminID)}
	if _, ok := patch["balance"]; ok {
		attrs = append(attrs, slog.Float64("balance", u.Balance.Float()))
	}
	s.log.Info("user updated by admin", attrs...)
	sanitized := u.Sanitized()
	return &sanitized, nil
}

// Delete удаляет пользователя. Администратор не может удалить сам себя.
func (s *Service) Delete(ctx context.Context, id, adminID string) error {
	const op = "users.Delete"
	if id == adminID {
		return fmt.Errorf("%s: cannot delete yourself: %w", op, services.ErrForbidden)
	}
	ok, err := s.users.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, services.ErrUserNotFound)
	}
	s.log.Info("user deleted", slog.String("user_id", id), slog.String("admin_id", adminID))
	return nil
}
