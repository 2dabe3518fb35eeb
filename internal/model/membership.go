package model

import "time"

// Membership is owned by the membership subsystem; the ledger only reads it.
type Membership struct {
	ApartmentID string `gorm:"primaryKey;size:64"`
	UserID      string `gorm:"primaryKey;size:64"`
	JoinedAt    time.Time
}

func (Membership) TableName() string { return "apartment_member" }
