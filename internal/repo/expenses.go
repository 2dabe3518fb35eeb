package repo

import (
	"context"
	"errors"

	"github.com/richardliu001/ledger-service/internal/apperr"
	"github.com/richardliu001/ledger-service/internal/model"
	"gorm.io/gorm"
)

// CreateExpense inserts an expense with its participants.
func (r *Repository) CreateExpense(ctx context.Context, tx *gorm.DB, e *model.Expense) error {
	for i := range e.Participants {
		e.Participants[i].ExpenseID = e.ID
	}
	return tx.WithContext(ctx).Create(e).Error
}

// GetExpense reads an expense with its participants.
func (r *Repository) GetExpense(ctx context.Context, tx *gorm.DB, expenseID string) (*model.Expense, error) {
	var e model.Expense
	err := tx.WithContext(ctx).Preload("Participants").Where("id = ?", expenseID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "", "expense %s not found", expenseID)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListExpenses returns the apartment's expenses, oldest first.
func (r *Repository) ListExpenses(ctx context.Context, tx *gorm.DB, apartmentID string, visibleOnly bool) ([]model.Expense, error) {
	q := tx.WithContext(ctx).Preload("Participants").Where("apartment_id = ?", apartmentID)
	if visibleOnly {
		q = q.Where("visible = ?", true)
	}
	var out []model.Expense
	err := q.Order("created_at, id").Find(&out).Error
	return out, err
}

// CreateTransfer inserts a transfer.
func (r *Repository) CreateTransfer(ctx context.Context, tx *gorm.DB, t *model.Transfer) error {
	return tx.WithContext(ctx).Create(t).Error
}

// ListTransfers returns the apartment's transfers, oldest first.
func (r *Repository) ListTransfers(ctx context.Context, tx *gorm.DB, apartmentID string) ([]model.Transfer, error) {
	var out []model.Transfer
	err := tx.WithContext(ctx).Where("apartment_id = ?", apartmentID).Order("created_at, id").Find(&out).Error
	return out, err
}
