package models

import "math"

// TransactionType тип движения средств по кошельку
type TransactionType string

const (
	TransactionDeposit  TransactionType = "deposit"
	TransactionPurchase TransactionType = "purchase"
	TransactionRefund   TransactionType = "refund"
)

// Sign знак изменения баланса для типа транзакции: +1 для пополнения и возврата, -1 для покупки.
// Для неизвестного типа возвращает 0.
func (t TransactionType) Sign() float64 {
	switch t {
	case TransactionDeposit, TransactionRefund:
		return 1
	case TransactionPurchase:
		return -1
	default:
		return 0
	}
}

// Transaction запись журнала операций по балансу пользователя.
// Amount всегда положителен, направление задаётся типом.
type Transaction struct {
	Base
	UserID           string          `json:"userId"`
	Type             TransactionType `json:"type"`
	Amount           float64         `json:"amount"`
	BeforeBalance    float64         `json:"beforeBalance"`
	AfterBalance     float64         `json:"afterBalance"`
	Description      string          `json:"description"`
	RelatedPaymentID string          `json:"relatedPaymentId,omitempty"`
}

// Consistent проверяет инвариант afterBalance - beforeBalance == знак(type) * amount
// с заданной погрешностью.
func (t *Transaction) Consistent(tolerance float64) bool {
	sign := t.Type.Sign()
	if sign == 0 || t.Amount < 0 {
		return false
	}
	return math.Abs((t.AfterBalance-t.BeforeBalance)-sign*t.Amount) <= tolerance
}
