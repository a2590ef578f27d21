package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryLedger applies the chaincode's transfer rules to in-process state.
// It backs LEDGER_MODE=memory and local development.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	history  []Entry
	now      func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]decimal.Decimal),
		now:      time.Now,
	}
}

func (l *MemoryLedger) InitLedger(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, acc := range SeedAccounts {
		l.balances[acc.Name] = acc.Balance
	}
	return nil
}

func (l *MemoryLedger) Transfer(ctx context.Context, sender, receiver string, amount decimal.Decimal, reference string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: invalid amount", ErrRejected)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	from, ok := l.balances[sender]
	if !ok {
		return "", fmt.Errorf("%w: sender account error: account not found", ErrRejected)
	}
	to, ok := l.balances[receiver]
	if !ok {
		return "", fmt.Errorf("%w: receiver account error: account not found", ErrRejected)
	}
	if from.LessThan(amount) {
		return "", fmt.Errorf("%w: insufficient balance", ErrRejected)
	}

	l.balances[sender] = from.Sub(amount)
	l.balances[receiver] = to.Add(amount)

	txID := uuid.NewString()
	l.history = append(l.history, Entry{
		TxID:      txID,
		Reference: reference,
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		Timestamp: l.now().UTC(),
	})
	return txID, nil
}

func (l *MemoryLedger) QueryBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	acc, err := l.QueryAccount(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

func (l *MemoryLedger) QueryAccount(ctx context.Context, account string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[account]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, account)
	}
	return &Account{Name: account, Balance: bal}, nil
}

func (l *MemoryLedger) QueryHistory(ctx context.Context, account string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.balances[account]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, account)
	}
	out := []Entry{}
	for _, e := range l.history {
		if e.Sender == account || e.Receiver == account {
			out = append(out, e)
		}
	}
	return out, nil
}

// Open creates an account with the given balance. Used by seeding and tests.
func (l *MemoryLedger) Open(account string, balance decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = balance
}
