package model

import (
	"time"
)

const (
	RechargeStatusPending  = "PENDING"
	RechargeStatusSuccess  = "SUCCESS"
	RechargeStatusFailed   = "FAILED"
	RechargeStatusRefunded = "REFUNDED"
)

// ValidRechargeTransitions lists the allowed status edges. PENDING is the
// only non-terminal state; REFUNDED is reachable only after SUCCESS and
// must be accompanied by a reversal transaction.
var ValidRechargeTransitions = map[string][]string{
	RechargeStatusPending: {RechargeStatusSuccess, RechargeStatusFailed},
	RechargeStatusSuccess: {RechargeStatusRefunded},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowed, exists := ValidRechargeTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// TicketRecharge is one payment attempt. Created PENDING when the purchase
// is initiated; only the reconciler moves it to a terminal state, driven by
// provider webhooks. A SUCCESS transition produces exactly one CREDIT
// transaction, linked via CreditTransactionNo.
type TicketRecharge struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RechargeNo    string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"recharge_no"`
	StudentID     int64      `gorm:"index;not null" json:"student_id"`
	AmountCents   int64      `gorm:"not null" json:"amount_cents"`
	Currency      string     `gorm:"type:varchar(3);not null" json:"currency"`
	Tickets       int64      `gorm:"not null" json:"tickets"`
	Status              string     `gorm:"type:varchar(20);index;not null" json:"status"`
	ExternalTxnID       *string    `gorm:"type:varchar(128);uniqueIndex" json:"external_txn_id,omitempty"` // provider id, idempotency key
	RawPayload          string     `gorm:"type:text" json:"-"`                                             // provider payload verbatim, for disputes
	CreditTransactionNo *string    `gorm:"type:varchar(64)" json:"credit_transaction_no,omitempty"`
	PaidAt              *time.Time `json:"paid_at,omitempty"`
	CreatedAt           time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"not null" json:"updated_at"`
}

func (TicketRecharge) TableName() string {
	return "ticket_recharge"
}

// NewTicketRecharge builds a PENDING recharge with explicit timestamps.
func NewTicketRecharge(rechargeNo string, studentID, amountCents int64, currency string, tickets int64) *TicketRecharge {
	now := time.Now()
	return &TicketRecharge{
		RechargeNo:  rechargeNo,
		StudentID:   studentID,
		AmountCents: amountCents,
		Currency:    currency,
		Tickets:     tickets,
		Status:      RechargeStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
