package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is a direct payment FromUserID -> ToUserID with no split semantics.
type Transfer struct {
	ID          string          `gorm:"primaryKey;size:64" json:"id"`
	ApartmentID string          `gorm:"size:64;not null;index" json:"apartment_id"`
	FromUserID  string          `gorm:"size:64;not null" json:"from_user_id"`
	ToUserID    string          `gorm:"size:64;not null" json:"to_user_id"`
	Amount      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	DebtID      *string         `gorm:"size:64" json:"debt_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (Transfer) TableName() string { return "transfer" }
