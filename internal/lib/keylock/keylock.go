// Package keylock мьютексы по строковому ключу внутри процесса.
package keylock

import "sync"

// Map мьютексы по ключу; записи удаляются, когда ключ никто не держит.
type Map struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New создаёт пустой набор мьютексов.
func New() *Map {
	return &Map{locks: make(map[string]*entry)}
}

// Lock захватывает мьютекс ключа и возвращает функцию освобождения.
func (k *Map) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len количество ключей, которые сейчас кто-то держит или ждёт.
func (k *Map) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
