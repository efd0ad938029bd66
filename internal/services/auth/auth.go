// Package auth регистрирует пользователей, выдаёт и отзывает JWT.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/hackstore/internal/lib/jwt"
	"github.com/magabrotheeeer/hackstore/internal/lib/password"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/services"
	"github.com/magabrotheeeer/hackstore/internal/storage/kv"
	"github.com/magabrotheeeer/hackstore/internal/storage/repository"
)

const revokedPrefix = "revoked:"

// UserRepository контракт хранилища пользователей для аутентификации.
type UserRepository interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, patch map[string]any) (*models.User, error)
}

// Session выданный при входе токен и пользователь без хэша пароля.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

// Service регистрация, вход, выход и проверка токенов.
type Service struct {
	users    UserRepository
	jwtMaker jwt.Maker
	revoked  kv.Store
	log      *slog.Logger
	now      func() time.Time
}

// NewAuthService создаёт сервис. revoked хранит отозванные jti до истечения их срока.
func NewAuthService(users UserRepository, jwtMaker jwt.Maker, revoked kv.Store, log *slog.Logger) *Service {
	return &Service{
		users:    users,
		jwtMaker: jwtMaker,
		revoked:  revoked,
		log:      log.With(slog.String("component", "auth_service")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register создаёт пользователя с ролью user и нулевым балансом.
// Username уникален без учёта регистра.
func (s *Service) Register(ctx context.Context, username, name, rawPassword string) (*models.User, error) {
	const op = "auth.Register"
	username = strings.TrimSpace(username)
	existing, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrUsernameTaken)
	}

	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if name == "" {
		name = username
	}
	u, err := s.users.Create(ctx, &models.User{
		Username: username,
		Password: hashed,
		Name:     name,
		Role:     models.RoleUser,
		IsActive: true,
	})
	if errors.Is(err, repository.ErrUsernameTaken) {
		return nil, fmt.Errorf("%s: %w", op, services.ErrUsernameTaken)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("user registered", slog.String("user_id", u.ID), slog.String("username", u.Username))
	sanitized := u.Sanitized()
	return &sanitized, nil
}

// Login проверяет пароль, обновляет lastLogin и выдаёт токен.
// Деактивированный пользователь получает ErrUserInactive.
func (s *Service) Login(ctx context.Context, username, rawPassword string) (*Session, error) {
	const op = "auth.Login"
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if u == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrInvalidCredentials)
	}
	if err := password.CompareHash(u.Password, rawPassword); err != nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrInvalidCredentials)
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%s: %w", op, services.ErrUserInactive)
	}

	token, err := s.jwtMaker.GenerateToken(u.ID, u.Username, string(u.Role))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	updated, err := s.users.UpdateUser(ctx, u.ID, map[string]any{"lastLogin": s.now()})
	if err != nil {
		s.log.Warn("cannot update last login", slog.String("user_id", u.ID), sl.Err(err))
	} else if updated != nil {
		u = updated
	}

	return &Session{Token: token.Value, ExpiresAt: token.ExpiresAt, User: u.Sanitized()}, nil
}

// Logout отзывает токен до конца срока его действия.
func (s *Service) Logout(ctx context.Context, claims *jwt.CustomClaims) error {
	const op = "auth.Logout"
	if claims == nil || claims.ID == "" {
		return nil
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(s.now())
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.revoked.Set(ctx, revokedPrefix+claims.ID, []byte(`true`), kv.WithTTL(ttl)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ValidateToken проверяет подпись и срок токена, а также что он не отозван.
func (s *Service) ValidateToken(ctx context.Context, token string) (*jwt.CustomClaims, error) {
	const op = "auth.ValidateToken"
	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if claims.ID != "" {
		revoked, err := s.revoked.Exists(ctx, revokedPrefix+claims.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if revoked {
			return nil, fmt.Errorf("%s: %w", op, services.ErrTokenRevoked)
		}
	}
	return claims, nil
}

// CurrentUser пользователь по идентификатору из токена без хэша пароля.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	const op = "auth.CurrentUser"
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if u == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrUserNotFound)
	}
	sanitized := u.Sanitized()
	return &sanitized, nil
}

// IsInvalidToken сообщает, что ошибка связана с самим токеном, а не с хранилищем.
func IsInvalidToken(err error) bool {
	return errors.Is(err, jwt.ErrInvalidToken) || errors.Is(err, services.ErrTokenRevoked)
}
