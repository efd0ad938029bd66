package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransaction_Consistent(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
		want bool
	}{
		{
			name: "deposit adds amount",
			tx:   Transaction{Type: TransactionDeposit, Amount: 100000, BeforeBalance: 50000, AfterBalance: 150000},
			want: true,
		},
		{
			name: "purchase subtracts amount",
			tx:   Transaction{Type: TransactionPurchase, Amount: 30000, BeforeBalance: 50000, AfterBalance: 20000},
			want: true,
		},
		{
			name: "refund adds amount",
			tx:   Transaction{Type: TransactionRefund, Amount: 30000, BeforeBalance: 20000, AfterBalance: 50000},
			want: true,
		},
		{
			name: "purchase recorded as increase",
			tx:   Transaction{Type: TransactionPurchase, Amount: 30000, BeforeBalance: 20000, AfterBalance: 50000},
			want: false,
		},
		{
			name: "unknown type",
			tx:   Transaction{Type: "bonus", Amount: 1, BeforeBalance: 0, AfterBalance: 1},
			want: false,
		},
		{
			name: "negative amount",
			tx:   Transaction{Type: TransactionDeposit, Amount: -5, BeforeBalance: 10, AfterBalance: 5},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tx.Consistent(0.01))
		})
	}
}

func TestDepositStatus_Terminal(t *testing.T) {
	assert.False(t, DepositPending.Terminal())
	assert.True(t, DepositApproved.Terminal())
	assert.True(t, DepositRejected.Terminal())
}

func TestTicketStatus_CanTransition(t *testing.T) {
	assert.True(t, TicketOpen.CanTransition(TicketResolved))
	assert.True(t, TicketResolved.CanTransition(TicketOpen))
	assert.True(t, TicketPending.CanTransition(TicketClosed))
	assert.True(t, TicketClosed.CanTransition(TicketClosed))
	assert.False(t, TicketClosed.CanTransition(TicketOpen))
	assert.False(t, TicketOpen.CanTransition("archived"))
}

func TestIntentKind_TransactionType(t *testing.T) {
	assert.Equal(t, TransactionDeposit, IntentDeposit.TransactionType())
	assert.Equal(t, TransactionPurchase, IntentPurchase.TransactionType())
	assert.Equal(t, TransactionRefund, IntentRefund.TransactionType())
	assert.Equal(t, "deposit-abc", IntentID(IntentDeposit, "abc"))
}
