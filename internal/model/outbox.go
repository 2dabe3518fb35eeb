package model

import "time"

const (
	EventDebtCreated      = "DebtCreated"
	EventDebtClosed       = "DebtClosed"
	EventBalancesAdjusted = "BalancesAdjusted"
)

type OutboxEvent struct {
	ID          uint64    `gorm:"primaryKey"`
	Aggregate   string    `gorm:"size:64;not null"`
	AggregateID string    `gorm:"size:64;not null"`
	EventType   string    `gorm:"size:64;not null"`
	Payload     string    `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	Processed   bool      `gorm:"not null;default:false"`
	ProcessedAt *time.Time
}

func (OutboxEvent) TableName() string { return "event_outbox" }

// LedgerEvent is the JSON payload of an outbox event.
type LedgerEvent struct {
	ApartmentID string `json:"apartment_id"`
	DebtID      string `json:"debt_id,omitempty"`
	Event       string `json:"event"`
}

// All returns every table the ledger migrates.
func All() []interface{} {
	return []interface{}{
		&Debt{}, &Expense{}, &ExpenseParticipant{}, &Transfer{}, &Balance{},
		&ApartmentLedger{}, &AuditEntry{}, &Membership{}, &OutboxEvent{},
	}
}
