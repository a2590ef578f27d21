// Package ledger is the typed client for the distributed ledger that holds
// account balances and settled transfers.
//
// Reconciliation depends on the ledger storing the caller's reference with
// each transfer. The gateway contract is Transfer(sender, receiver, amount,
// reference), and every history entry returned by QueryHistory must carry
// that reference back in its "reference" field. A chaincode whose Transfer
// takes only sender, receiver and amount and records just its own tx id
// cannot back this client: FindReference would never match and every
// indeterminate transfer would reconcile as not settled.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Client is the ledger RPC surface used by the settlement pipeline.
// Implementations are safe for concurrent use.
type Client interface {
	// Transfer moves amount from sender to receiver. reference is stored
	// with the ledger entry so the transfer can be found in history later.
	Transfer(ctx context.Context, sender, receiver string, amount decimal.Decimal, reference string) (string, error)
	QueryBalance(ctx context.Context, account string) (decimal.Decimal, error)
	// QueryHistory returns the account's entries, most recent last.
	QueryHistory(ctx context.Context, account string) ([]Entry, error)
	QueryAccount(ctx context.Context, account string) (*Account, error)
	InitLedger(ctx context.Context) error
}

// Entry is one settled transfer as recorded on the ledger.
type Entry struct {
	TxID      string          `json:"tx_id"`
	Reference string          `json:"reference,omitempty"`
	Sender    string          `json:"sender"`
	Receiver  string          `json:"receiver"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

type Account struct {
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

// Seed accounts created by InitLedger.
var SeedAccounts = []Account{
	{Name: "BankA", Balance: decimal.NewFromInt(1_000_000)},
	{Name: "BankB", Balance: decimal.NewFromInt(500_000)},
}

// FindReference returns the entry carrying reference, if present.
func FindReference(entries []Entry, reference string) (Entry, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Reference == reference || entries[i].TxID == reference {
			return entries[i], true
		}
	}
	return Entry{}, false
}
