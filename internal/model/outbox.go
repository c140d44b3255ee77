package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage is a notification event written in the same DB transaction
// as the ledger change it describes. A background sender relays it to Kafka;
// delivery failure never touches the committed ledger write.
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// NewOutboxMessage builds a PENDING outbox row with explicit timestamps.
func NewOutboxMessage(key, topic, payload string) *OutboxMessage {
	now := time.Now()
	return &OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		Payload:    payload,
		Status:     OutboxStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
