package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedger_InitLedgerSeedsBanks(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, l.InitLedger(ctx))

	bal, err := l.QueryBalance(ctx, "BankA")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(1_000_000)))

	bal, err = l.QueryBalance(ctx, "BankB")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(500_000)))
}

func TestMemoryLedger_Transfer(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		sender   string
		receiver string
		amount   decimal.Decimal
		wantErr  error
		errMsg   string
	}{
		{name: "moves funds", sender: "BankA", receiver: "BankB", amount: decimal.NewFromInt(250)},
		{name: "zero amount", sender: "BankA", receiver: "BankB", amount: decimal.Zero, wantErr: ErrRejected, errMsg: "invalid amount"},
		{name: "missing sender", sender: "Nobody", receiver: "BankB", amount: decimal.NewFromInt(1), wantErr: ErrRejected, errMsg: "sender account"},
		{name: "missing receiver", sender: "BankA", receiver: "Nobody", amount: decimal.NewFromInt(1), wantErr: ErrRejected, errMsg: "receiver account"},
		{name: "insufficient balance", sender: "BankB", receiver: "BankA", amount: decimal.NewFromInt(500_001), wantErr: ErrRejected, errMsg: "insufficient balance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewMemoryLedger()
			require.NoError(t, l.InitLedger(ctx))

			ref, err := l.Transfer(ctx, tt.sender, tt.receiver, tt.amount, "ref-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, ref)

			from, _ := l.QueryBalance(ctx, tt.sender)
			to, _ := l.QueryBalance(ctx, tt.receiver)
			assert.Equal(t, "999750", from.String())
			assert.Equal(t, "500250", to.String())

			hist, err := l.QueryHistory(ctx, tt.receiver)
			require.NoError(t, err)
			require.Len(t, hist, 1)
			entry, found := FindReference(hist, "ref-1")
			assert.True(t, found)
			assert.Equal(t, ref, entry.TxID)
		})
	}
}

func TestMemoryLedger_QueryUnknownAccount(t *testing.T) {
	l := NewMemoryLedger()
	_, err := l.QueryAccount(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.QueryHistory(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
