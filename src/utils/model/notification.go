package model

import (
	"time"

	"github.com/jackc/pgtype"
)

const TableNotification = "notifications"

// Notification is one persisted broadcast message. Retention is bounded
// per agreement reference, oldest rows get evicted first.
type Notification struct {
	ID string `gorm:"primaryKey"`

	Code string `gorm:"not null; index"`

	AgreementReference string `gorm:"not null; index"`

	Payload pgtype.JSONB `gorm:"type:jsonb"`

	Version string `gorm:"not null"`

	CreatedAt time.Time `gorm:"index"`
}

func (Notification) TableName() string {
	return TableNotification
}
