package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/hackstore/internal/storage"
)

const scanCount = 256

// RedisOptions настройки пула соединений redis поверх URL.
type RedisOptions struct {
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
}

// RedisStore удалённый бэкенд на redis. Подключение устанавливается при первой операции.
type RedisStore struct {
	conn *connector[*redis.Client]
}

// NewRedis создаёт redis-бэкенд по URL вида redis://[user:pass@]host:port/db.
// Сеть не трогается до первой операции.
func NewRedis(url string, opts RedisOptions, policy RetryPolicy, log *slog.Logger) (*RedisStore, error) {
	const op = "kv.NewRedis"
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if opts.MaxRetries != 0 {
		ropts.MaxRetries = opts.MaxRetries
	}
	if opts.DialTimeout > 0 {
		ropts.DialTimeout = opts.DialTimeout
	}
	if opts.Timeout > 0 {
		ropts.ReadTimeout = opts.Timeout
		ropts.WriteTimeout = opts.Timeout
	}

	dial := func(ctx context.Context) (*redis.Client, error) {
		client := redis.NewClient(ropts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, err
		}
		return client, nil
	}
	closeFn := func(c *redis.Client) error { return c.Close() }

	return &RedisStore{conn: newConnector(dial, closeFn, policy, log.With(slog.String("backend", string(BackendRedis))))}, nil
}

// Name имя бэкенда.
func (s *RedisStore) Name() Backend { return BackendRedis }

func (s *RedisStore) client(ctx context.Context) (*redis.Client, error) {
	return s.conn.ensure(ctx)
}

// fail сбрасывает соединение после сетевой ошибки и оборачивает её.
func (s *RedisStore) fail(op string, err error) error {
	s.conn.reset()
	return fmt.Errorf("%s: %w", op, err)
}

// Ping проверяет доступность сервера.
func (s *RedisStore) Ping(ctx context.Context) error {
	const op = "kv.RedisStore.Ping"
	c, err := s.client(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.Ping(ctx).Err(); err != nil {
		return s.fail(op, err)
	}
	return nil
}

// Get возвращает значение ключа или storage.ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	const op = "kv.RedisStore.Get"
	c, err := s.client(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	val, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, s.fail(op, err)
	}
	return val, nil
}

// Set записывает значение с необязательным TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, opts ...SetOption) error {
	const op = "kv.RedisStore.Set"
	o := applySetOptions(opts)
	c, err := s.client(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.Set(ctx, key, value, o.ttl).Err(); err != nil {
		return s.fail(op, err)
	}
	return nil
}

// Del удаляет ключ.
func (s *RedisStore) Del(ctx context.Context, key string) error {
	const op = "kv.RedisStore.Del"
	c, err := s.client(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.Del(ctx, key).Err(); err != nil {
		return s.fail(op, err)
	}
	return nil
}

// Keys обходит пространство ключей через SCAN MATCH.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	const op = "kv.RedisStore.Keys"
	c, err := s.client(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	seen := make(map[string]struct{})
	keys := make([]string, 0)
	iter := c.Scan(ctx, 0, redisPattern(pattern), scanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if _, dup := seen[key]; dup || !Match(pattern, key) {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, s.fail(op, err)
	}
	return sortedKeys(keys), nil
}

// MGet возвращает значения в порядке ключей, nil для отсутствующих.
func (s *RedisStore) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	const op = "kv.RedisStore.MGet"
	out := make([][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	c, err := s.client(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	vals, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, s.fail(op, err)
	}
	for i, v := range vals {
		switch val := v.(type) {
		case string:
			out[i] = []byte(val)
		case []byte:
			out[i] = val
		}
	}
	return out, nil
}

// Exists сообщает, существует ли ключ.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	const op = "kv.RedisStore.Exists"
	c, err := s.client(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := c.Exists(ctx, key).Result()
	if err != nil {
		return false, s.fail(op, err)
	}
	return n > 0, nil
}

// Close закрывает соединение.
func (s *RedisStore) Close() error {
	return s.conn.close()
}
