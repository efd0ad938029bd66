// Package models содержит доменные структуры витрины: пользователей, пакеты,
// транзакции, заявки на пополнение, банковские счета, тикеты и настройки сайта.
// Все сущности сериализуются в JSON с camelCase-ключами, как их ожидает фронтенд.
package models

import "time"

// Base общие поля каждой сущности, хранимой в key-value хранилище.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Meta возвращает указатель на общие поля. Через него репозитории
// проставляют идентификатор и временные метки, не зная конкретного типа.
func (b *Base) Meta() *Base {
	return b
}
