package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to string
		allowed  bool
	}{
		{RechargeStatusPending, RechargeStatusSuccess, true},
		{RechargeStatusPending, RechargeStatusFailed, true},
		{RechargeStatusSuccess, RechargeStatusRefunded, true},
		{RechargeStatusPending, RechargeStatusRefunded, false},
		{RechargeStatusSuccess, RechargeStatusPending, false},
		{RechargeStatusSuccess, RechargeStatusFailed, false},
		{RechargeStatusFailed, RechargeStatusSuccess, false},
		{RechargeStatusFailed, RechargeStatusPending, false},
		{RechargeStatusRefunded, RechargeStatusSuccess, false},
		{"UNKNOWN", RechargeStatusSuccess, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.allowed, CanTransitionTo(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestNewTicketRecharge(t *testing.T) {
	r := NewTicketRecharge("RCH1", 7, 5000, "EUR", 50)

	assert.Equal(t, RechargeStatusPending, r.Status)
	assert.Equal(t, int64(7), r.StudentID)
	assert.Equal(t, int64(50), r.Tickets)
	assert.Nil(t, r.ExternalTxnID)
	assert.Nil(t, r.CreditTransactionNo)
	assert.Equal(t, r.CreatedAt, r.UpdatedAt)
}
