package model

import (
	"time"
)

// TicketAccount holds the ticket balance of one student.
// Exactly one row per student; the balance is never written directly,
// only by the ledger service together with a transaction row.
type TicketAccount struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID int64     `gorm:"uniqueIndex;not null" json:"student_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"` // tickets, never negative
	Version   int       `gorm:"not null;default:0" json:"version"` // guard for conditional updates
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (TicketAccount) TableName() string {
	return "ticket_account"
}

// NewTicketAccount builds a zero-balance account. Timestamps are set
// explicitly by the constructor, not by ORM hooks.
func NewTicketAccount(studentID int64) *TicketAccount {
	now := time.Now()
	return &TicketAccount{
		StudentID: studentID,
		Balance:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
