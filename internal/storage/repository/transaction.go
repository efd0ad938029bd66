package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/storage/kv"
)

// TransactionRepository журнал операций по балансу.
type TransactionRepository struct {
	*Repository[models.Transaction, *models.Transaction]
	tolerance float64
}

// NewTransactionRepository создаёт журнал; tolerance погрешность проверки инварианта.
func NewTransactionRepository(store kv.Store, tolerance float64) *TransactionRepository {
	return &TransactionRepository{
		Repository: New[models.Transaction](store, "transaction"),
		tolerance:  tolerance,
	}
}

// Create сохраняет транзакцию, если after - before совпадает со знаковой суммой.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	const op = "repository.TransactionRepository.Create"
	if !tx.Consistent(r.tolerance) {
		return nil, fmt.Errorf("%s: %s %.2f -> %.2f for %.2f: %w",
			op, tx.Type, tx.BeforeBalance, tx.AfterBalance, tx.Amount, ErrInvalidTransaction)
	}
	return r.Repository.Create(ctx, tx)
}

// FindByUser история пользователя, новые первыми.
func (r *TransactionRepository) FindByUser(ctx context.Context, userID string) ([]*models.Transaction, error) {
	out, err := r.Find(ctx, func(t *models.Transaction) bool { return t.UserID == userID })
	if err != nil {
		return nil, err
	}
	newestFirst(out)
	return out, nil
}

// FindRelated транзакции, ссылающиеся на relatedID.
func (r *TransactionRepository) FindRelated(ctx context.Context, relatedID string, typ models.TransactionType) ([]*models.Transaction, error) {
	return r.Find(ctx, func(t *models.Transaction) bool {
		return t.RelatedPaymentID == relatedID && (typ == "" || t.Type == typ)
	})
}

// newestFirst сортирует по CreatedAt по убыванию, сохраняя порядок при равенстве.
func newestFirst[PT interface{ Meta() *models.Base }](items []PT) {
	slices.SortStableFunc(items, func(a, b PT) int {
		return b.Meta().CreatedAt.Compare(a.Meta().CreatedAt)
	})
}
