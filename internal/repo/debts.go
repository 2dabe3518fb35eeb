package repo

import (
	"context"
	"errors"
	"time"

	"github.com/richardliu001/ledger-service/internal/apperr"
	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DebtClosure carries the fields written when a debt transitions to closed.
type DebtClosure struct {
	ClosedBy      string
	ClosedAt      time.Time
	SettlementID  *string
	ClearedAmount *decimal.Decimal
}

// ValidateDebt enforces the invariants every stored debt must satisfy.
func ValidateDebt(d *model.Debt) error {
	switch {
	case d.ID == "":
		return apperr.New(apperr.InvalidArgument, apperr.ReasonMissingField, "debt id is required")
	case d.ApartmentID == "":
		return apperr.New(apperr.InvalidArgument, apperr.ReasonMissingField, "apartment id is required")
	case d.DebtorID == "" || d.CreditorID == "":
		return apperr.New(apperr.InvalidArgument, apperr.ReasonMissingField, "debtor and creditor are required")
	case d.DebtorID == d.CreditorID:
		return apperr.New(apperr.InvalidArgument, apperr.ReasonSelfDebt, "debtor and creditor must differ")
	case !d.Amount.IsPositive():
		return apperr.New(apperr.InvalidArgument, apperr.ReasonInvalidAmount, "amount must be positive, got %s", d.Amount)
	case d.Status != model.DebtOpen:
		return apperr.New(apperr.InvalidArgument, apperr.ReasonMissingField, "new debts must be open")
	}
	return nil
}

// CreateDebt validates and inserts an open debt.
func (r *Repository) CreateDebt(ctx context.Context, tx *gorm.DB, d *model.Debt) error {
	if err := ValidateDebt(d); err != nil {
		return err
	}
	return tx.WithContext(ctx).Create(d).Error
}

// GetDebt reads a debt by id.
func (r *Repository) GetDebt(ctx context.Context, tx *gorm.DB, debtID string) (*model.Debt, error) {
	return r.getDebt(tx.WithContext(ctx), debtID)
}

// GetDebtForUpdate locks debt row.
func (r *Repository) GetDebtForUpdate(ctx context.Context, tx *gorm.DB, debtID string) (*model.Debt, error) {
	return r.getDebt(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), debtID)
}

func (r *Repository) getDebt(q *gorm.DB, debtID string) (*model.Debt, error) {
	var d model.Debt
	err := q.Where("id = ?", debtID).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, apperr.ReasonDebtNotFound, "debt %s not found", debtID)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DebtExists reports whether any debt uses debtID.
func (r *Repository) DebtExists(ctx context.Context, tx *gorm.DB, debtID string) (bool, error) {
	var n int64
	err := tx.WithContext(ctx).Model(&model.Debt{}).Where("id = ?", debtID).Count(&n).Error
	return n > 0, err
}

// ListOpenDebts returns the apartment's open debts, oldest first.
func (r *Repository) ListOpenDebts(ctx context.Context, tx *gorm.DB, apartmentID string) ([]model.Debt, error) {
	var debts []model.Debt
	err := tx.WithContext(ctx).
		Where("apartment_id = ? AND status = ?", apartmentID, model.DebtOpen).
		Order("created_at, id").
		Find(&debts).Error
	return debts, err
}

// CloseDebt moves an open debt to closed and returns its previous state.
// Only status and closing fields are written; amount and parties are never
// touched. A debt that is no longer open yields ErrCloseConflict.
func (r *Repository) CloseDebt(ctx context.Context, tx *gorm.DB, debtID string, c DebtClosure) (*model.Debt, error) {
	prev, err := r.GetDebt(ctx, tx, debtID)
	if err != nil {
		return nil, err
	}
	if !prev.IsOpen() {
		return nil, ErrCloseConflict
	}

	updates := map[string]interface{}{
		"status":    model.DebtClosed,
		"closed_at": c.ClosedAt,
		"closed_by": c.ClosedBy,
	}
	if c.SettlementID != nil {
		updates["settlement_id"] = *c.SettlementID
	}
	if c.ClearedAmount != nil {
		updates["cleared_amount"] = *c.ClearedAmount
	}
	res := tx.WithContext(ctx).
		Model(&model.Debt{}).
		Where("id = ? AND status = ?", debtID, model.DebtOpen).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrCloseConflict
	}
	return prev, nil
}
