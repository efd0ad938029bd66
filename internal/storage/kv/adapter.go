package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"

	"github.com/magabrotheeeer/hackstore/internal/config"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/metrics"
	"github.com/magabrotheeeer/hackstore/internal/storage"
)

// Remote удалённый бэкенд, за которым стоит локальный файл.
type Remote interface {
	Store
	Name() Backend
	Ping(ctx context.Context) error
	Close() error
}

// Result значение вместе с именем бэкенда, который его отдал.
type Result struct {
	Value   []byte
	Backend Backend
}

// Adapter отправляет каждую операцию в удалённый бэкенд, а при любой его ошибке
// (кроме отсутствия ключа) пишет предупреждение и обслуживает вызов локальным файлом.
// Ошибка удалённого бэкенда наружу не выходит.
type Adapter struct {
	local    *LocalStore
	remote   Remote
	log      *slog.Logger
	degraded atomic.Bool
}

// NewAdapter собирает адаптер. remote может быть nil: тогда работает только локальный файл.
func NewAdapter(local *LocalStore, remote Remote, log *slog.Logger) *Adapter {
	return &Adapter{local: local, remote: remote, log: log}
}

// Open выбирает удалённый бэкенд по схеме storage.remote_url:
// redis:// и rediss:// для redis, postgres:// и postgresql:// для postgres, пустая строка без удалённого бэкенда.
func Open(cfg config.Storage, rc config.RedisConnection, log *slog.Logger) (*Adapter, error) {
	const op = "kv.Open"

	log = log.With(slog.String("component", "kv"))
	local := OpenLocal(cfg.LocalPath, log)
	if cfg.RemoteURL == "" {
		log.Info("remote kv is not configured, using local store", slog.String("path", cfg.LocalPath))
		return NewAdapter(local, nil, log), nil
	}

	u, err := url.Parse(cfg.RemoteURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	policy := RetryPolicy{Attempts: cfg.ConnectRetries, Backoff: cfg.ConnectBackoff, MaxBackoff: cfg.MaxBackoff}

	var remote Remote
	switch u.Scheme {
	case "redis", "rediss":
		remote, err = NewRedis(cfg.RemoteURL, RedisOptions{
			MaxRetries:  rc.RedisMaxRetries,
			DialTimeout: rc.RedisDialTimeout,
			Timeout:     rc.RedisTimeoutRedis,
		}, policy, log)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	case "postgres", "postgresql":
		remote = NewPostgres(cfg.RemoteURL, policy, log)
	default:
		return nil, fmt.Errorf("%s: unsupported remote scheme %q", op, u.Scheme)
	}

	log.Info("remote kv configured", slog.String("backend", string(remote.Name())), slog.String("host", u.Host))
	return NewAdapter(local, remote, log), nil
}

// Backend имя основного бэкенда.
func (a *Adapter) Backend() Backend {
	if a.remote == nil {
		return BackendLocal
	}
	return a.remote.Name()
}

// Degraded сообщает, завершилась ли ошибкой последняя попытка обращения к удалённому бэкенду.
func (a *Adapter) Degraded() bool {
	return a.degraded.Load()
}

// Probe пингует удалённый бэкенд. Ошибка только логируется: работа продолжится на локальном файле.
func (a *Adapter) Probe(ctx context.Context) error {
	const op = "kv.Adapter.Probe"
	if a.remote == nil {
		return nil
	}
	if err := a.remote.Ping(ctx); err != nil {
		a.degraded.Store(true)
		a.log.Warn("remote kv is unreachable, continuing on local store",
			slog.String("backend", string(a.remote.Name())),
			sl.Err(err),
		)
		return fmt.Errorf("%s: %w", op, err)
	}
	a.degraded.Store(false)
	a.log.Info("remote kv is reachable", slog.String("backend", string(a.remote.Name())))
	return nil
}

// passthrough ошибки вызывающего, которые не означают отказ бэкенда.
func passthrough(err error) bool {
	return err == nil || errors.Is(err, storage.ErrNotFound) || errors.Is(err, ErrInvalidValue)
}

func (a *Adapter) do(op string, fn func(Store) error) (Backend, error) {
	if a.remote != nil {
		err := fn(a.remote)
		if passthrough(err) {
			a.degraded.Store(false)
			metrics.KVOperation(string(a.remote.Name()), op)
			return a.remote.Name(), err
		}
		a.degraded.Store(true)
		metrics.KVFallback(op)
		a.log.Warn("remote kv failed, falling back to local store",
			slog.String("op", op),
			slog.String("backend", string(a.remote.Name())),
			sl.Err(err),
		)
	}
	metrics.KVOperation(string(BackendLocal), op)
	return BackendLocal, fn(a.local)
}

// Get возвращает значение ключа или storage.ErrNotFound.
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := a.GetFrom(ctx, key)
	return res.Value, err
}

// GetFrom как Get, но дополнительно называет бэкенд, который обслужил чтение.
func (a *Adapter) GetFrom(ctx context.Context, key string) (Result, error) {
	var value []byte
	backend, err := a.do("get", func(s Store) error {
		v, err := s.Get(ctx, key)
		value = v
		return err
	})
	return Result{Value: value, Backend: backend}, err
}

// Set записывает значение.
func (a *Adapter) Set(ctx context.Context, key string, value []byte, opts ...SetOption) error {
	_, err := a.do("set", func(s Store) error {
		return s.Set(ctx, key, value, opts...)
	})
	return err
}

// Del удаляет ключ.
func (a *Adapter) Del(ctx context.Context, key string) error {
	_, err := a.do("del", func(s Store) error {
		return s.Del(ctx, key)
	})
	return err
}

// Keys возвращает отсортированные ключи по шаблону.
func (a *Adapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	_, err := a.do("keys", func(s Store) error {
		k, err := s.Keys(ctx, pattern)
		keys = k
		return err
	})
	return keys, err
}

// MGet возвращает значения в порядке ключей.
func (a *Adapter) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	var values [][]byte
	_, err := a.do("mget", func(s Store) error {
		v, err := s.MGet(ctx, keys)
		values = v
		return err
	})
	return values, err
}

// Exists сообщает, существует ли ключ.
func (a *Adapter) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	_, err := a.do("exists", func(s Store) error {
		ok, err := s.Exists(ctx, key)
		exists = ok
		return err
	})
	return exists, err
}

// PurgeExpired чистит истёкшие ключи удалённого бэкенда, если он это умеет.
func (a *Adapter) PurgeExpired(ctx context.Context) (int64, error) {
	p, ok := a.remote.(interface {
		PurgeExpired(ctx context.Context) (int64, error)
	})
	if !ok {
		return 0, nil
	}
	return p.PurgeExpired(ctx)
}

// Close закрывает удалённый бэкенд.
func (a *Adapter) Close() error {
	if a.remote == nil {
		return nil
	}
	return a.remote.Close()
}
