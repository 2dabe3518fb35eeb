package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the materialized net position of one user in one apartment.
// Positive Net means the user is owed money.
type Balance struct {
	ApartmentID  string          `gorm:"primaryKey;size:64" json:"apartment_id"`
	UserID       string          `gorm:"primaryKey;size:64" json:"user_id"`
	Net          decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"net"`
	HasOpenDebts bool            `gorm:"not null" json:"has_open_debts"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (Balance) TableName() string { return "balance" }

type LedgerProtocol string

const (
	ProtocolRecompute   LedgerProtocol = "recompute"
	ProtocolIncremental LedgerProtocol = "incremental"
)

// ApartmentLedger records which protocol last wrote an apartment's balances.
type ApartmentLedger struct {
	ApartmentID  string         `gorm:"primaryKey;size:64"`
	LastProtocol LedgerProtocol `gorm:"size:16;not null"`
	UpdatedAt    time.Time
}

func (ApartmentLedger) TableName() string { return "apartment_ledger" }
