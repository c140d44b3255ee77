package model

import (
	"time"
)

// ============================================================================
// Transaction types
// ============================================================================

const (
	TransactionTypeCredit   = "CREDIT"   // tickets added by a successful recharge
	TransactionTypeDebit    = "DEBIT"    // tickets consumed by a lesson
	TransactionTypeReversal = "REVERSAL" // clawback of a refunded recharge
)

// ============================================================================
// Ledger entry
// ============================================================================

// TicketTransaction is one immutable row of the ledger.
//
// Rules this table lives by:
//  1. Append only. Rows are never updated or deleted -- audit trail.
//  2. Every debit carries the lesson it paid for; (account, lesson) is unique,
//     which is what makes per-lesson debits exactly-once.
//  3. Balance before/after is recorded on every row so the chain can be
//     verified: balance_after of row N == balance_before of row N+1.
type TicketTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	AccountID     int64     `gorm:"index;not null;uniqueIndex:idx_account_lesson,priority:1" json:"account_id"`
	StudentID     int64     `gorm:"index;not null" json:"student_id"`
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`
	Amount        int64     `gorm:"not null" json:"amount"` // tickets, always positive; Type carries the sign
	LessonID      *string   `gorm:"type:varchar(64);uniqueIndex:idx_account_lesson,priority:2" json:"lesson_id,omitempty"`
	RechargeNo    *string   `gorm:"type:varchar(64);index" json:"recharge_no,omitempty"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	Description   string    `gorm:"type:varchar(256)" json:"description"`
	CreatedAt     time.Time `gorm:"not null;index" json:"created_at"`
}

func (TicketTransaction) TableName() string {
	return "ticket_transaction"
}
