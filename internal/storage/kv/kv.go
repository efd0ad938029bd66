// Package kv реализует key-value хранилище с тремя бэкендами (локальный файл,
// redis, postgres) и адаптер, который переключается на локальный файл
// при любой ошибке удалённого бэкенда.
package kv

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Backend имя бэкенда, обслужившего операцию.
type Backend string

// Поддерживаемые бэкенды.
const (
	BackendLocal    Backend = "local"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
)

// Store контракт key-value хранилища. Значения непрозрачны для хранилища.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, opts ...SetOption) error
	Del(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// SetOption настройка записи.
type SetOption func(*setOptions)

type setOptions struct {
	ttl time.Duration
}

// WithTTL задаёт время жизни ключа. Нулевое значение означает бессрочное хранение.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

func applySetOptions(opts []SetOption) setOptions {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Match проверяет ключ на соответствие шаблону. Поддерживается одна звёздочка
// в начале и/или в конце; шаблон без звёздочки работает как префикс.
func Match(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	leading := strings.HasPrefix(pattern, "*")
	trailing := strings.HasSuffix(pattern, "*")
	core := strings.TrimSuffix(strings.TrimPrefix(pattern, "*"), "*")

	switch {
	case leading && trailing:
		return strings.Contains(key, core)
	case leading:
		return strings.HasSuffix(key, core)
	default:
		return strings.HasPrefix(key, core)
	}
}

// redisPattern переводит шаблон в glob для SCAN MATCH.
func redisPattern(pattern string) string {
	if pattern == "" || pattern == "*" {
		return "*"
	}
	leading := strings.HasPrefix(pattern, "*")
	core := strings.TrimSuffix(strings.TrimPrefix(pattern, "*"), "*")

	var b strings.Builder
	if leading {
		b.WriteByte('*')
	}
	for _, r := range core {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	if !leading || strings.HasSuffix(pattern, "*") {
		b.WriteByte('*')
	}
	return b.String()
}

// likePattern переводит шаблон в выражение LIKE с экранированием через '\'.
func likePattern(pattern string) string {
	if pattern == "" || pattern == "*" {
		return "%"
	}
	leading := strings.HasPrefix(pattern, "*")
	core := strings.TrimSuffix(strings.TrimPrefix(pattern, "*"), "*")

	var b strings.Builder
	if leading {
		b.WriteByte('%')
	}
	for _, r := range core {
		switch r {
		case '%', '_', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	if !leading || strings.HasSuffix(pattern, "*") {
		b.WriteByte('%')
	}
	return b.String()
}

func sortedKeys(keys []string) []string {
	sort.Strings(keys)
	return keys
}
