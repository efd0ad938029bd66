// Package storage объединяет общие для хранилищ ошибки.
// Реализации key-value бэкендов лежат в storage/kv, типизированные репозитории в storage/repository.
package storage

import "errors"

var (
	// ErrNotFound ключ отсутствует в хранилище или истёк его TTL.
	ErrNotFound = errors.New("key not found")
	// ErrUnavailable удалённое хранилище недоступно.
	ErrUnavailable = errors.New("storage unavailable")
)
