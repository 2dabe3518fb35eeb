package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DebtStatus string

const (
	DebtOpen   DebtStatus = "open"
	DebtClosed DebtStatus = "closed"
)

// Debt is a directed obligation: DebtorID owes CreditorID Amount.
// Once closed, amount and parties never change.
type Debt struct {
	ID            string           `gorm:"primaryKey;size:64" json:"id"`
	ApartmentID   string           `gorm:"size:64;not null;index:idx_debt_apartment_status" json:"apartment_id"`
	DebtorID      string           `gorm:"size:64;not null" json:"debtor_id"`
	CreditorID    string           `gorm:"size:64;not null" json:"creditor_id"`
	Amount        decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"amount"`
	Status        DebtStatus       `gorm:"size:16;not null;index:idx_debt_apartment_status" json:"status"`
	Description   string           `gorm:"size:255" json:"description,omitempty"`
	CreatedBy     string           `gorm:"size:64;not null" json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty"`
	ClosedBy      *string          `gorm:"size:64" json:"closed_by,omitempty"`
	SettlementID  *string          `gorm:"size:64" json:"settlement_id,omitempty"`
	ClearedAmount *decimal.Decimal `gorm:"type:numeric(20,2)" json:"cleared_amount,omitempty"`
}

func (Debt) TableName() string { return "debt" }

func (d *Debt) IsOpen() bool { return d.Status == DebtOpen }
