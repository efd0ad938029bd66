package models

import "time"

// TicketStatus статус обращения в поддержку
type TicketStatus string

const (
	TicketOpen     TicketStatus = "open"
	TicketPending  TicketStatus = "pending"
	TicketResolved TicketStatus = "resolved"
	TicketClosed   TicketStatus = "closed"
)

// Valid проверяет, что статус входит в допустимый набор.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketPending, TicketResolved, TicketClosed:
		return true
	}
	return false
}

// CanTransition разрешает любой переход, кроме выхода из closed.
func (s TicketStatus) CanTransition(to TicketStatus) bool {
	if !to.Valid() {
		return false
	}
	return s != TicketClosed || to == TicketClosed
}

// TicketPriority приоритет обращения
type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
)

// TicketResponse сообщение в переписке по тикету
type TicketResponse struct {
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

// Ticket обращение пользователя в поддержку
type Ticket struct {
	Base
	UserID    string           `json:"userId"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Status    TicketStatus     `json:"status"`
	Priority  TicketPriority   `json:"priority"`
	Responses []TicketResponse `json:"responses"`
}
