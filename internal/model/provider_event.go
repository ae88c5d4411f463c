package model

import (
	"time"

	"gorm.io/datatypes"
)

// ProviderEvent records every webhook event received so replays can be skipped.
type ProviderEvent struct {
	ID           uint64         `gorm:"primaryKey"`
	Provider     string         `gorm:"size:64;not null;uniqueIndex:ux_provider_events_provider_event,priority:1"`
	EventID      string         `gorm:"size:128;not null;uniqueIndex:ux_provider_events_provider_event,priority:2"`
	EventType    string         `gorm:"size:64;not null"`
	TenantID     string         `gorm:"size:64"`
	PayloadJSON  datatypes.JSON `gorm:"not null"`
	ReceivedAt   time.Time      `gorm:"not null"`
	ProcessedAt  *time.Time
	ProcessError *string `gorm:"size:255"`
}

func (ProviderEvent) TableName() string { return "provider_events" }

// All lists every table this service owns, in migration order.
func All() []interface{} {
	return []interface{}{
		&Transaction{},
		&ProviderCustomer{},
		&ProviderPaymentMethod{},
		&OutboxEvent{},
		&ProviderEvent{},
	}
}
