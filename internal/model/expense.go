package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ExpenseKind string

const (
	// ExpenseShared is an ordinary expense: payer fronts Amount, split evenly.
	ExpenseShared ExpenseKind = "shared"
	// ExpenseSettlement is the hidden 2x record written when a debt is settled directly.
	ExpenseSettlement ExpenseKind = "settlement"
	// ExpenseMonthlySettlement is the hidden 2x record written by create-and-close.
	ExpenseMonthlySettlement ExpenseKind = "monthly_settlement"
)

// Expense is an expense-history document. Settlement kinds are compatibility
// records for readers that only understand even splits and are never visible.
type Expense struct {
	ID           string               `gorm:"primaryKey;size:64" json:"id"`
	ApartmentID  string               `gorm:"size:64;not null;index" json:"apartment_id"`
	PayerID      string               `gorm:"size:64;not null" json:"payer_id"`
	Amount       decimal.Decimal      `gorm:"type:numeric(20,2);not null" json:"amount"`
	Kind         ExpenseKind          `gorm:"size:32;not null" json:"kind"`
	Visible      bool                 `gorm:"not null" json:"visible"`
	LinkedDebtID *string              `gorm:"size:64;index" json:"linked_debt_id,omitempty"`
	Description  string               `gorm:"size:255" json:"description,omitempty"`
	CreatedBy    string               `gorm:"size:64;not null" json:"created_by"`
	CreatedAt    time.Time            `json:"created_at"`
	Participants []ExpenseParticipant `gorm:"foreignKey:ExpenseID;constraint:OnDelete:CASCADE" json:"participants"`
}

func (Expense) TableName() string { return "expense" }

// ParticipantIDs returns the participant user ids in stored order.
func (e *Expense) ParticipantIDs() []string {
	ids := make([]string, len(e.Participants))
	for i, p := range e.Participants {
		ids[i] = p.UserID
	}
	return ids
}

type ExpenseParticipant struct {
	ExpenseID string `gorm:"primaryKey;size:64" json:"-"`
	UserID    string `gorm:"primaryKey;size:64" json:"user_id"`
}

func (ExpenseParticipant) TableName() string { return "expense_participant" }
