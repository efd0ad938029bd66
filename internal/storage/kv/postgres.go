package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/hackstore/internal/migrations"
	"github.com/magabrotheeeer/hackstore/internal/storage"
)

const liveCondition = `(expires_at IS NULL OR expires_at > now())`

// PostgresStore удалённый бэкенд на таблице kv_store.
// При первом подключении применяются миграции.
type PostgresStore struct {
	conn *connector[*sql.DB]
}

// NewPostgres создаёт postgres-бэкенд. Сеть не трогается до первой операции.
func NewPostgres(dsn string, policy RetryPolicy, log *slog.Logger) *PostgresStore {
	dial := func(ctx context.Context) (*sql.DB, error) {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := migrations.Run(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}
	closeFn := func(db *sql.DB) error { return db.Close() }

	return &PostgresStore{conn: newConnector(dial, closeFn, policy, log.With(slog.String("backend", string(BackendPostgres))))}
}

// Name имя бэкенда.
func (s *PostgresStore) Name() Backend { return BackendPostgres }

func (s *PostgresStore) db(ctx context.Context) (*sql.DB, error) {
	return s.conn.ensure(ctx)
}

func (s *PostgresStore) fail(op string, err error) error {
	s.conn.reset()
	return fmt.Errorf("%s: %w", op, err)
}

// Ping проверяет доступность базы.
func (s *PostgresStore) Ping(ctx context.Context) error {
	const op = "kv.PostgresStore.Ping"
	db, err := s.db(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := db.PingContext(ctx); err != nil {
		return s.fail(op, err)
	}
	return nil
}

// Get возвращает значение ключа или storage.ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	const op = "kv.PostgresStore.Get"
	db, err := s.db(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var value []byte
	err = db.QueryRowContext(ctx,
		`SELECT value FROM kv_store WHERE key = $1 AND `+liveCondition, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, s.fail(op, err)
	}
	return value, nil
}

// Set вставляет или заменяет значение.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, opts ...SetOption) error {
	const op = "kv.PostgresStore.Set"
	if !json.Valid(value) {
		return fmt.Errorf("%s: %w", op, ErrInvalidValue)
	}
	o := applySetOptions(opts)
	var expiresAt sql.NullTime
	if o.ttl > 0 {
		expiresAt = sql.NullTime{Time: time.Now().Add(o.ttl), Valid: true}
	}

	db, err := s.db(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, expires_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, string(value), expiresAt,
	)
	if err != nil {
		return s.fail(op, err)
	}
	return nil
}

// Del удаляет ключ.
func (s *PostgresStore) Del(ctx context.Context, key string) error {
	const op = "kv.PostgresStore.Del"
	db, err := s.db(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1`, key); err != nil {
		return s.fail(op, err)
	}
	return nil
}

// Keys возвращает отсортированные живые ключи по шаблону.
func (s *PostgresStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	const op = "kv.PostgresStore.Keys"
	db, err := s.db(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rows, err := db.QueryContext(ctx,
		`SELECT key FROM kv_store WHERE key LIKE $1 ESCAPE '\' AND `+liveCondition+` ORDER BY key`,
		likePattern(pattern),
	)
	if err != nil {
		return nil, s.fail(op, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(op, err)
	}
	return sortedKeys(keys), nil
}

// MGet возвращает значения в порядке ключей, nil для отсутствующих.
func (s *PostgresStore) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	const op = "kv.PostgresStore.MGet"
	out := make([][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	db, err := s.db(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rows, err := db.QueryContext(ctx,
		`SELECT key, value FROM kv_store WHERE key = ANY($1) AND `+liveCondition, keys,
	)
	if err != nil {
		return nil, s.fail(op, err)
	}
	defer rows.Close()

	found := make(map[string][]byte, len(keys))
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		found[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(op, err)
	}
	for i, key := range keys {
		out[i] = found[key]
	}
	return out, nil
}

// Exists сообщает, есть ли живое значение ключа.
func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	const op = "kv.PostgresStore.Exists"
	db, err := s.db(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	var exists bool
	err = db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM kv_store WHERE key = $1 AND `+liveCondition+`)`, key,
	).Scan(&exists)
	if err != nil {
		return false, s.fail(op, err)
	}
	return exists, nil
}

// PurgeExpired удаляет истёкшие строки и возвращает их количество.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	const op = "kv.PostgresStore.PurgeExpired"
	db, err := s.db(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	res, err := db.ExecContext(ctx, `DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, s.fail(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// Close закрывает пул соединений.
func (s *PostgresStore) Close() error {
	return s.conn.close()
}
