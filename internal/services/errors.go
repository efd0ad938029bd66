// Package services объединяет ошибки бизнес-уровня, общие для сервисов витрины.
// Реализации сервисов лежат во вложенных пакетах.
package services

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserInactive        = errors.New("user is inactive")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrDepositNotFound     = errors.New("deposit request not found")
	ErrBankUnavailable     = errors.New("bank account not found or inactive")
	ErrBankNotFound        = errors.New("bank account not found")
	ErrAmountTooSmall      = errors.New("amount is below the minimum deposit")
	ErrPackageNotFound     = errors.New("package not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrNotRefundable       = errors.New("only purchase transactions can be refunded")
	ErrAlreadyRefunded     = errors.New("transaction already refunded")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrTicketClosed        = errors.New("ticket is closed")
	ErrForbidden           = errors.New("forbidden")
	ErrTokenRevoked        = errors.New("token revoked")
)
