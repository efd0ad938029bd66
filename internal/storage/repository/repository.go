// Package repository реализует типизированные CRUD-репозитории поверх key-value хранилища.
//
// Каждая сущность хранится под ключом "<entity>:<id>", а список всех идентификаторов
// в порядке создания лежит в индексе "idx:<entity>:all".
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/storage"
	"github.com/magabrotheeeer/hackstore/internal/storage/kv"
)

var (
	// ErrInvalidTransition попытка изменить статус заявки, которая уже в конечном состоянии.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrVersionConflict запись изменилась с момента чтения.
	ErrVersionConflict = errors.New("version conflict")
	// ErrInsufficientBalance операция увела бы баланс ниже нуля.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidTransaction транзакция нарушает after - before == знак(type) * amount.
	ErrInvalidTransaction = errors.New("inconsistent transaction")
	// ErrInvalidPatch патч не является JSON-объектом.
	ErrInvalidPatch = errors.New("patch must be a json object")
	// ErrUsernameTaken username уже занят другим пользователем.
	ErrUsernameTaken = errors.New("username already taken")
)

// Entity ограничение на указатель сущности со встроенным models.Base.
type Entity[T any] interface {
	*T
	Meta() *models.Base
}

// Guard проверяет изменение записи перед сохранением.
type Guard[PT any] func(old, updated PT) error

// Repository CRUD над сущностью T.
type Repository[T any, PT Entity[T]] struct {
	store  kv.Store
	entity string
	guard  Guard[PT]
	indexM sync.Mutex
	now    func() time.Time
	newID  func() string
}

// New создаёт репозиторий для сущности с именем entity.
func New[T any, PT Entity[T]](store kv.Store, entity string) *Repository[T, PT] {
	return &Repository[T, PT]{
		store:  store,
		entity: entity,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

func (r *Repository[T, PT]) key(id string) string {
	return r.entity + ":" + id
}

func (r *Repository[T, PT]) indexKey() string {
	return "idx:" + r.entity + ":all"
}

func (r *Repository[T, PT]) decode(raw []byte) (PT, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return PT(&v), nil
}

// write сохраняет запись как есть, без меток времени и индексов.
func (r *Repository[T, PT]) write(ctx context.Context, v PT) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, r.key(v.Meta().ID), payload)
}

// readIndex возвращает идентификаторы из индекса; отсутствующий индекс пуст.
func (r *Repository[T, PT]) readIndex(ctx context.Context) ([]string, error) {
	raw, err := r.store.Get(ctx, r.indexKey())
	if errors.Is(err, storage.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("corrupt index %s: %w", r.indexKey(), err)
	}
	return ids, nil
}

func (r *Repository[T, PT]) writeIndex(ctx context.Context, ids []string) error {
	payload, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, r.indexKey(), payload)
}

// updateIndex выполняет read-modify-write индекса под мьютексом репозитория.
func (r *Repository[T, PT]) updateIndex(ctx context.Context, fn func([]string) []string) error {
	r.indexM.Lock()
	defer r.indexM.Unlock()
	ids, err := r.readIndex(ctx)
	if err != nil {
		return err
	}
	return r.writeIndex(ctx, fn(ids))
}

// Create сохраняет новую запись. Идентификатор генерируется, если не задан вызывающим.
// Дубликаты по содержимому не проверяются.
func (r *Repository[T, PT]) Create(ctx context.Context, v PT) (PT, error) {
	op := "repository." + r.entity + ".Create"
	meta := v.Meta()
	if meta.ID == "" {
		meta.ID = r.newID()
	}
	now := r.now()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	meta.UpdatedAt = now

	if err := r.write(ctx, v); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	err := r.updateIndex(ctx, func(ids []string) []string {
		if slices.Contains(ids, meta.ID) {
			return ids
		}
		return append(ids, meta.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

// FindByID возвращает запись или (nil, nil), если её нет.
func (r *Repository[T, PT]) FindByID(ctx context.Context, id string) (PT, error) {
	op := "repository." + r.entity + ".FindByID"
	if id == "" {
		return nil, nil
	}
	raw, err := r.store.Get(ctx, r.key(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	v, err := r.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

// FindAll возвращает записи в порядке создания. Идентификаторы из индекса,
// для которых нет записи или она не читается, молча пропускаются.
func (r *Repository[T, PT]) FindAll(ctx context.Context) ([]PT, error) {
	op := "repository." + r.entity + ".FindAll"
	ids, err := r.readIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := make([]PT, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	values, err := r.store.MGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	seen := make(map[string]struct{}, len(ids))
	for i, raw := range values {
		if raw == nil {
			continue
		}
		if _, dup := seen[ids[i]]; dup {
			continue
		}
		v, err := r.decode(raw)
		if err != nil {
			continue
		}
		seen[ids[i]] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

// Find фильтрует FindAll в памяти.
func (r *Repository[T, PT]) Find(ctx context.Context, pred func(PT) bool) ([]PT, error) {
	all, err := r.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PT, 0, len(all))
	for _, v := range all {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Count количество живых записей.
func (r *Repository[T, PT]) Count(ctx context.Context) (int, error) {
	all, err := r.FindAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// Update читает запись, применяет mutate и сохраняет результат.
// ID и CreatedAt сохраняются, UpdatedAt обновляется. Нет записи: (nil, nil).
func (r *Repository[T, PT]) Update(ctx context.Context, id string, mutate func(PT) error) (PT, error) {
	op := "repository." + r.entity + ".Update"
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if current == nil {
		return nil, nil
	}
	old := *current
	if err := mutate(current); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := r.save(ctx, PT(&old), current); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return current, nil
}

// Patch накладывает JSON-объект на запись поверх её полей верхнего уровня.
func (r *Repository[T, PT]) Patch(ctx context.Context, id string, patch []byte) (PT, error) {
	op := "repository." + r.entity + ".Patch"
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPatch)
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if current == nil {
		return nil, nil
	}
	merged, err := mergeJSON(current, fields)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	updated, err := r.decode(merged)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := r.save(ctx, current, updated); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return updated, nil
}

// save восстанавливает ID и CreatedAt, проверяет guard и пишет запись.
func (r *Repository[T, PT]) save(ctx context.Context, old, updated PT) error {
	meta := updated.Meta()
	meta.ID = old.Meta().ID
	meta.CreatedAt = old.Meta().CreatedAt
	meta.UpdatedAt = r.now()
	if r.guard != nil {
		if err := r.guard(old, updated); err != nil {
			return err
		}
	}
	return r.write(ctx, updated)
}

// Delete удаляет запись и её идентификатор из индекса. Нет записи: false.
func (r *Repository[T, PT]) Delete(ctx context.Context, id string) (bool, error) {
	op := "repository." + r.entity + ".Delete"
	if id == "" {
		return false, nil
	}
	exists, err := r.store.Exists(ctx, r.key(id))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return false, nil
	}
	if err := r.store.Del(ctx, r.key(id)); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	err = r.updateIndex(ctx, func(ids []string) []string {
		return slices.DeleteFunc(ids, func(s string) bool { return s == id })
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// Compact удаляет из индекса идентификаторы без записей и дубликаты.
// Возвращает количество удалённых элементов индекса.
func (r *Repository[T, PT]) Compact(ctx context.Context) (int, error) {
	op := "repository." + r.entity + ".Compact"
	r.indexM.Lock()
	defer r.indexM.Unlock()

	ids, err := r.readIndex(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	values, err := r.store.MGet(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	seen := make(map[string]struct{}, len(ids))
	kept := make([]string, 0, len(ids))
	for i, id := range ids {
		if values[i] == nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		kept = append(kept, id)
	}
	pruned := len(ids) - len(kept)
	if pruned == 0 {
		return 0, nil
	}
	if err := r.writeIndex(ctx, kept); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return pruned, nil
}

// Entity имя сущности, используемое в ключах.
func (r *Repository[T, PT]) Entity() string {
	return r.entity
}

// mergeJSON накладывает поля на JSON-представление записи.
func mergeJSON(current any, fields map[string]json.RawMessage) ([]byte, error) {
	raw, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	var base map[string]json.RawMessage
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, err
	}
	for k, v := range fields {
		switch k {
		case "id", "createdAt", "updatedAt":
			continue
		}
		base[k] = v
	}
	return json.Marshal(base)
}
