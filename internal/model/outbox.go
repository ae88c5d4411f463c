package model

import "time"

const (
	AggregateOrderable       = "Orderable"
	EventTransactionsTotaled = "TransactionsTotaled"
)

type OutboxEvent struct {
	ID          uint64    `gorm:"primaryKey"`
	Aggregate   string    `gorm:"size:64;not null"`
	AggregateID string    `gorm:"size:64;not null"`
	EventType   string    `gorm:"size:64;not null"`
	Payload     string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	Processed   bool      `gorm:"not null;default:false;index"`
	ProcessedAt *time.Time
}

func (OutboxEvent) TableName() string { return "event_outbox" }

// TransactionsTotaled is the change notification emitted after every ledger save.
type TransactionsTotaled struct {
	TenantID       string       `json:"tenant_id"`
	OrderableID    string       `json:"orderable_id"`
	Livemode       bool         `json:"livemode"`
	TotalPaid      int64        `json:"total_paid"`
	TransactionID  uint64       `json:"transaction_id"`
	TransactionPID string       `json:"transaction_pid"`
	Transaction    *Transaction `json:"-"`
}
