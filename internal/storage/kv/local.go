package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/storage"
)

// ErrInvalidValue значение не является JSON-документом.
var ErrInvalidValue = errors.New("value is not a json document")

// LocalStore хранит ключи в памяти и после каждой изменяющей операции
// переписывает весь снимок в один JSON-файл.
type LocalStore struct {
	mu      sync.RWMutex
	path    string
	data    map[string]json.RawMessage
	expires map[string]time.Time
	log     *slog.Logger
	now     func() time.Time
}

type localDocument struct {
	Data    map[string]json.RawMessage `json:"data"`
	Expires map[string]time.Time       `json:"expires,omitempty"`
}

// OpenLocal открывает файловое хранилище. Отсутствующий или повреждённый файл
// не считается ошибкой: хранилище стартует пустым, а проблема пишется в лог.
func OpenLocal(path string, log *slog.Logger) *LocalStore {
	s := &LocalStore{
		path:    path,
		data:    map[string]json.RawMessage{},
		expires: map[string]time.Time{},
		log:     log,
		now:     time.Now,
	}
	s.load()
	return s
}

func (s *LocalStore) load() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("cannot read local store, starting empty", slog.String("path", s.path), sl.Err(err))
		}
		return
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		s.log.Warn("local store is corrupt, starting empty", slog.String("path", s.path), sl.Err(err))
		return
	}

	if data, ok := top["data"]; ok && bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		var doc localDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			s.log.Warn("local store is corrupt, starting empty", slog.String("path", s.path), sl.Err(err))
			return
		}
		if doc.Data != nil {
			s.data = doc.Data
		}
		if doc.Expires != nil {
			s.expires = doc.Expires
		}
	} else {
		// файл старого формата: плоская карта ключ -> значение
		s.data = top
	}

	now := s.now()
	for key, at := range s.expires {
		if _, ok := s.data[key]; !ok || !now.Before(at) {
			delete(s.data, key)
			delete(s.expires, key)
		}
	}
	s.log.Debug("local store loaded", slog.String("path", s.path), slog.Int("keys", len(s.data)))
}

// flushLocked пишет снимок во временный файл и атомарно подменяет им основной.
func (s *LocalStore) flushLocked() error {
	const op = "kv.LocalStore.flush"

	payload, err := json.Marshal(localDocument{Data: s.data, Expires: s.expires})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// liveLocked сообщает, есть ли живое значение ключа. Должна вызываться под блокировкой.
func (s *LocalStore) liveLocked(key string, now time.Time) (json.RawMessage, bool) {
	v, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if at, ok := s.expires[key]; ok && !now.Before(at) {
		return nil, false
	}
	return v, true
}

// Get возвращает значение ключа или storage.ErrNotFound.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	v, ok := s.liveLocked(key, s.now())
	s.mu.RUnlock()
	if !ok {
		s.evictExpired(key)
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(v), nil
}

// evictExpired лениво удаляет истёкший ключ.
func (s *LocalStore) evictExpired(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.expires[key]
	if !ok || s.now().Before(at) {
		return
	}
	delete(s.data, key)
	delete(s.expires, key)
	if err := s.flushLocked(); err != nil {
		s.log.Warn("cannot persist local store", sl.Err(err))
	}
}

// Set записывает значение. Значение должно быть JSON-документом.
func (s *LocalStore) Set(ctx context.Context, key string, value []byte, opts ...SetOption) error {
	const op = "kv.LocalStore.Set"
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("%s: %w", op, ErrInvalidValue)
	}
	o := applySetOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = bytes.Clone(value)
	if o.ttl > 0 {
		s.expires[key] = s.now().Add(o.ttl)
	} else {
		delete(s.expires, key)
	}
	return s.flushLocked()
}

// Del удаляет ключ. Удаление отсутствующего ключа не ошибка.
func (s *LocalStore) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	delete(s.expires, key)
	return s.flushLocked()
}

// Keys возвращает отсортированные живые ключи, подходящие под шаблон.
func (s *LocalStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	keys := make([]string, 0)
	for key := range s.data {
		if _, ok := s.liveLocked(key, now); ok && Match(pattern, key) {
			keys = append(keys, key)
		}
	}
	return sortedKeys(keys), nil
}

// MGet возвращает значения в порядке ключей, nil для отсутствующих.
func (s *LocalStore) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make([][]byte, len(keys))
	for i, key := range keys {
		if v, ok := s.liveLocked(key, now); ok {
			out[i] = bytes.Clone(v)
		}
	}
	return out, nil
}

// Exists сообщает, есть ли живое значение ключа.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.liveLocked(key, s.now())
	return ok, nil
}

// Len количество живых ключей.
func (s *LocalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	n := 0
	for key := range s.data {
		if _, ok := s.liveLocked(key, now); ok {
			n++
		}
	}
	return n
}
