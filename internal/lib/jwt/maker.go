// Package jwt выпускает и проверяет HS256-токены витрины.
//
// В токене хранятся идентификатор пользователя, username, роль и jti.
// По jti выход из аккаунта отзывает конкретный токен до истечения его срока.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken токен не прошёл проверку подписи, срока или формата.
var ErrInvalidToken = errors.New("invalid token")

// Maker описывает выпуск и разбор токенов.
type Maker interface {
	GenerateToken(userID, username, role string) (*Token, error)
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// CustomClaims данные пользователя в токене. Идентификатор токена (jti) лежит в RegisteredClaims.ID.
type CustomClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Token выпущенный токен вместе с jti и сроком действия.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// MakerImpl реализация Maker с общим секретом.
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewJWTMaker создаёт Maker с секретом и временем жизни токена.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
		now:       time.Now,
	}
}

// GenerateToken подписывает новый токен для пользователя.
func (j *MakerImpl) GenerateToken(userID, username, role string) (*Token, error) {
	const op = "jwt.GenerateToken"
	now := j.now()
	expires := now.Add(j.tokenTTL)
	claims := CustomClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(j.secretKey))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Token{Value: signed, ID: claims.ID, ExpiresAt: expires}, nil
}

// ParseToken проверяет подпись и срок действия токена и возвращает его claims.
// Токены, подписанные не HMAC, отвергаются.
func (j *MakerImpl) ParseToken(tokenStr string) (*CustomClaims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(j.secretKey), nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	return claims, nil
}
