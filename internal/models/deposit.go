package models

import "time"

// DepositStatus статус заявки на пополнение
type DepositStatus string

const (
	DepositPending  DepositStatus = "pending"
	DepositApproved DepositStatus = "approved"
	DepositRejected DepositStatus = "rejected"
)

// Terminal сообщает, является ли статус конечным.
func (s DepositStatus) Terminal() bool {
	return s == DepositApproved || s == DepositRejected
}

// DepositRequest заявка пользователя о ручном банковском переводе.
// Баланс зачисляется только после подтверждения администратором.
type DepositRequest struct {
	Base
	UserID      string        `json:"userId"`
	Amount      int64         `json:"amount"`
	Method      string        `json:"method"`
	BankID      string        `json:"bankId"`
	Status      DepositStatus `json:"status"`
	Description string        `json:"description"`
	AdminNote   string        `json:"adminNote,omitempty"`
	ApprovedBy  string        `json:"approvedBy,omitempty"`
	ApprovedAt  *time.Time    `json:"approvedAt,omitempty"`
}
