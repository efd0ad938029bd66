package repository

import (
	"context"

	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/storage/kv"
)

// PackageRepository пакеты витрины.
type PackageRepository = Repository[models.Package, *models.Package]

// NewPackageRepository создаёт репозиторий пакетов.
func NewPackageRepository(store kv.Store) *PackageRepository {
	return New[models.Package](store, "package")
}

// BankRepository банковские счета для пополнения.
type BankRepository struct {
	*Repository[models.BankAccount, *models.BankAccount]
}

// NewBankRepository создаёт репозиторий банковских счетов.
func NewBankRepository(store kv.Store) *BankRepository {
	return &BankRepository{Repository: New[models.BankAccount](store, "bank")}
}

// FindActive счета, показываемые покупателям.
func (r *BankRepository) FindActive(ctx context.Context) ([]*models.BankAccount, error) {
	return r.Find(ctx, func(b *models.BankAccount) bool { return b.IsActive })
}

// TicketRepository обращения в поддержку.
type TicketRepository struct {
	*Repository[models.Ticket, *models.Ticket]
}

// NewTicketRepository создаёт репозиторий тикетов.
func NewTicketRepository(store kv.Store) *TicketRepository {
	return &TicketRepository{Repository: New[models.Ticket](store, "ticket")}
}

// FindByUser тикеты пользователя, новые первыми.
func (r *TicketRepository) FindByUser(ctx context.Context, userID string) ([]*models.Ticket, error) {
	out, err := r.Find(ctx, func(t *models.Ticket) bool { return t.UserID == userID })
	if err != nil {
		return nil, err
	}
	newestFirst(out)
	return out, nil
}
