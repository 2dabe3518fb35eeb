package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type AuditAction string

const (
	ActionDebtCreated       AuditAction = "debt_created"
	ActionExpenseCreated    AuditAction = "expense_created"
	ActionDebtSettled       AuditAction = "debt_settled"
	ActionDebtCreatedClosed AuditAction = "debt_created_closed"
	ActionBalancesRecompute AuditAction = "balances_recomputed"
)

// AuditEntry is append-only. ID is minted fresh for every call and doubles
// as the correlation id returned with errors.
type AuditEntry struct {
	ID             string           `gorm:"primaryKey;size:64" json:"id"`
	ApartmentID    string           `gorm:"size:64;not null;uniqueIndex:ux_audit_idem,priority:1" json:"apartment_id"`
	Action         AuditAction      `gorm:"size:32;not null;uniqueIndex:ux_audit_idem,priority:2" json:"action"`
	IdempotencyKey *string          `gorm:"size:128;uniqueIndex:ux_audit_idem,priority:3" json:"idempotency_key,omitempty"`
	ActorID        string           `gorm:"size:64;not null" json:"actor_id"`
	Amount         *decimal.Decimal `gorm:"type:numeric(20,2)" json:"amount,omitempty"`
	DebtID         *string          `gorm:"size:64" json:"debt_id,omitempty"`
	ResultRef      *string          `gorm:"size:64" json:"result_ref,omitempty"`
	Detail         datatypes.JSON   `json:"detail,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

func (AuditEntry) TableName() string { return "audit_log" }
