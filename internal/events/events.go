// Package events публикует доменные события витрины (пополнения, покупки, изменения баланса),
// по которым фронтенд синхронизирует открытые вкладки.
package events

import (
	"context"
	"log/slog"
	"time"
)

// Type тип события, он же routing key.
type Type string

const (
	DepositCreated      Type = "deposit.created"
	DepositApproved     Type = "deposit.approved"
	DepositRejected     Type = "deposit.rejected"
	BalanceUpdated      Type = "balance.updated"
	PackagePurchased    Type = "package.purchased"
	TransactionRefunded Type = "transaction.refunded"
)

// Event сообщение о произошедшем изменении.
type Event struct {
	Type       Type      `json:"type"`
	UserID     string    `json:"userId"`
	Payload    any       `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// New создаёт событие с текущим временем.
func New(typ Type, userID string, payload any) Event {
	return Event{Type: typ, UserID: userID, Payload: payload, OccurredAt: time.Now().UTC()}
}

// Publisher отправляет события подписчикам.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop пишет события в debug-лог. Используется, когда брокер не настроен.
type Noop struct {
	log *slog.Logger
}

// NewNoop создаёт публикатор без брокера.
func NewNoop(log *slog.Logger) *Noop {
	return &Noop{log: log}
}

// Publish только логирует событие.
func (n *Noop) Publish(_ context.Context, e Event) error {
	n.log.Debug("event", slog.String("type", string(e.Type)), slog.String("user_id", e.UserID))
	return nil
}
