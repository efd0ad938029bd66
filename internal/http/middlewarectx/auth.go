// Package middlewarectx содержит HTTP middleware витрины: проверку JWT,
// доступ только для администраторов и ограничение частоты запросов.
//
// JWTMiddleware кладёт claims токена в контекст запроса, обработчики читают их через ClaimsFrom.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/hackstore/internal/http/response"
	"github.com/magabrotheeeer/hackstore/internal/lib/jwt"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// Claims ключ claims токена в контексте
	Claims Key = "claims"
)

// Service проверяет токен.
type Service interface {
	ValidateToken(ctx context.Context, token string) (*jwt.CustomClaims, error)
}

// JWTMiddleware проверяет Bearer-токен из заголовка Authorization.
// Невалидный, просроченный или отозванный токен даёт 401.
func JWTMiddleware(authService Service, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Debug("missing or invalid authorization header")
				response.JSON(w, r, http.StatusUnauthorized, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

			claims, err := authService.ValidateToken(r.Context(), tokenStr)
			if err != nil {
				status, msg := response.StatusFor(err)
				if status == http.StatusInternalServerError {
					log.Error("token validation failed", sl.Err(err))
				} else {
					log.Info("token rejected", sl.Err(err))
				}
				response.JSON(w, r, status, response.Error(msg))
				return
			}
			ctx := context.WithValue(r.Context(), Claims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly пропускает только пользователей с ролью admin. Ставится после JWTMiddleware.
func AdminOnly(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFrom(r.Context())
			if !ok {
				response.JSON(w, r, http.StatusUnauthorized, response.Error("user identification missing"))
				return
			}
			if claims.Role != string(models.RoleAdmin) {
				log.Warn("admin route denied",
					slog.String("user_id", claims.UserID),
					slog.String("path", r.URL.Path),
					slog.String("request_id", middleware.GetReqID(r.Context())),
				)
				response.JSON(w, r, http.StatusForbidden, response.Error("admin access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFrom claims токена, положенные JWTMiddleware.
func ClaimsFrom(ctx context.Context) (*jwt.CustomClaims, bool) {
	claims, ok := ctx.Value(Claims).(*jwt.CustomClaims)
	return claims, ok && claims != nil
}

// WithClaims кладёт claims в контекст. Используется в тестах обработчиков.
func WithClaims(ctx context.Context, claims *jwt.CustomClaims) context.Context {
	return context.WithValue(ctx, Claims, claims)
}
