package repo

import (
	"context"

	"github.com/richardliu001/ledger-service/internal/model"
	"gorm.io/gorm"
)

// FindAuditByKey returns the entry previously recorded under an idempotency
// key, or nil.
func (r *Repository) FindAuditByKey(ctx context.Context, tx *gorm.DB, apartmentID string, action model.AuditAction, key string) (*model.AuditEntry, error) {
	if key == "" {
		return nil, nil
	}
	var e model.AuditEntry
	res := tx.WithContext(ctx).
		Where("apartment_id = ? AND action = ? AND idempotency_key = ?", apartmentID, action, key).
		Limit(1).Find(&e)
	if res.Error != nil || res.RowsAffected == 0 {
		return nil, res.Error
	}
	return &e, nil
}

// AppendAudit inserts an entry. Entries are never updated or deleted.
func (r *Repository) AppendAudit(ctx context.Context, tx *gorm.DB, e *model.AuditEntry) error {
	return tx.WithContext(ctx).Create(e).Error
}
