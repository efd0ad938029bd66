// Package ticket обращения пользователей в поддержку и ответы на них.
package ticket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/services"
	"github.com/magabrotheeeer/hackstore/internal/storage/repository"
)

// Repository хранилище тикетов.
type Repository interface {
	Create(ctx context.Context, t *models.Ticket) (*models.Ticket, error)
	FindByID(ctx context.Context, id string) (*models.Ticket, error)
	FindAll(ctx context.Context) ([]*models.Ticket, error)
	FindByUser(ctx context.Context, userID string) ([]*models.Ticket, error)
	Update(ctx context.Context, id string, mutate func(*models.Ticket) error) (*models.Ticket, error)
}

// CreateRequest новое обращение.
type CreateRequest struct {
	Title    string
	Message  string
	Priority models.TicketPriority
}

// Actor автор действия над тикетом.
type Actor struct {
	UserID  string
	IsAdmin bool
}

// Service тикеты поддержки.
type Service struct {
	tickets Repository
	log     *slog.Logger
	now     func() time.Time
}

// New создаёт сервис тикетов.
func New(tickets Repository, log *slog.Logger) *Service {
	return &Service{
		tickets: tickets,
		log:     log.With(slog.String("component", "ticket_service")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create открывает тикет со статусом open. Приоритет по умолчанию medium.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*models.Ticket, error) {
	const op = "ticket.Create"
	priority := req.Priority
	switch priority {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh:
	default:
		priority = models.PriorityMedium
	}
	t, err := s.tickets.Create(ctx, &models.Ticket{
		UserID:    userID,
		Title:     strings.TrimSpace(req.Title),
		Message:   strings.TrimSpace(req.Message),
		Status:    models.TicketOpen,
		Priority:  priority,
		Responses: []models.TicketResponse{},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("ticket created", slog.String("ticket_id", t.ID), slog.String("user_id", userID))
	return t, nil
}

// Get тикет, видимый актору: пользователю только свой, администратору любой.
func (s *Service) Get(ctx context.Context, id string, actor Actor) (*models.Ticket, error) {
	const op = "ticket.Get"
	t, err := s.tickets.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if t == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrTicketNotFound)
	}
	if !actor.IsAdmin && t.UserID != actor.UserID {
		return nil, fmt.Errorf("%s: %w", op, services.ErrTicketNotFound)
	}
	return t, nil
}

// Respond добавляет ответ в переписку. Ответ администратора на open переводит
// тикет в pending, ответ пользователя на resolved снова открывает его.
// В закрытый тикет писать нельзя.
func (s *Service) Respond(ctx context.Context, id string, actor Actor, message string) (*models.Ticket, error) {
	const op = "ticket.Respond"
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	t, err := s.tickets.Update(ctx, id, func(t *models.Ticket) error {
		if t.Status == models.TicketClosed {
			return services.ErrTicketClosed
		}
		t.Responses = append(t.Responses, models.TicketResponse{
			UserID:    actor.UserID,
			Message:   strings.TrimSpace(message),
			IsAdmin:   actor.IsAdmin,
			CreatedAt: s.now(),
		})
		switch {
		case actor.IsAdmin && t.Status == models.TicketOpen:
			t.Status = models.TicketPending
		case !actor.IsAdmin && t.Status == models.TicketResolved:
			t.Status = models.TicketOpen
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if t == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrTicketNotFound)
	}
	return t, nil
}

// SetStatus меняет статус тикета из админки. Из closed выйти нельзя.
func (s *Service) SetStatus(ctx context.Context, id string, status models.TicketStatus) (*models.Ticket, error) {
	const op = "ticket.SetStatus"
	if !status.Valid() {
		return nil, fmt.Errorf("%s: status %q: %w", op, status, repository.ErrInvalidTransition)
	}
	t, err := s.tickets.Update(ctx, id, func(t *models.Ticket) error {
		if !t.Status.CanTransition(status) {
			return services.ErrTicketClosed
		}
		t.Status = status
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if t == nil {
		return nil, fmt.Errorf("%s: %w", op, services.ErrTicketNotFound)
	}
	s.log.Info("ticket status changed", slog.String("ticket_id", id), slog.String("status", string(status)))
	return t, nil
}

// ListForUser тикеты пользователя, новые первыми.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*models.Ticket, error) {
	const op = "ticket.ListForUser"
	out, err := s.tickets.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// List все тикеты с фильтром по статусу для админки.
func (s *Service) List(ctx context.Context, status models.TicketStatus) ([]*models.Ticket, error) {
	const op = "ticket.List"
	all, err := s.tickets.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := make([]*models.Ticket, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if status == "" || all[i].Status == status {
			out = append(out, all[i])
		}
	}
	return out, nil
}
