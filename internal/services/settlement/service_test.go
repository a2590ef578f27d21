package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fintrust/internal/domain/transfer"
	domainerrors "fintrust/internal/errors"
	"fintrust/internal/repositories"
	"fintrust/internal/repositories/memory"
	"fintrust/internal/services/bridge"
	"fintrust/internal/services/ledger"
	"fintrust/internal/services/risk"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Transfer(ctx context.Context, sender, receiver string, amount decimal.Decimal, reference string) (string, error) {
	args := m.Called(ctx, sender, receiver, amount, reference)
	return args.String(0), args.Error(1)
}

func (m *MockLedger) QueryBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockLedger) QueryHistory(ctx context.Context, account string) ([]ledger.Entry, error) {
	args := m.Called(ctx, account)
	entries, _ := args.Get(0).([]ledger.Entry)
	return entries, args.Error(1)
}

func (m *MockLedger) QueryAccount(ctx context.Context, account string) (*ledger.Account, error) {
	args := m.Called(ctx, account)
	acc, _ := args.Get(0).(*ledger.Account)
	return acc, args.Error(1)
}

func (m *MockLedger) InitLedger(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type scorerFunc func(context.Context, transfer.Features) (float64, error)

func (f scorerFunc) Score(ctx context.Context, feat transfer.Features) (float64, error) {
	return f(ctx, feat)
}

func fixedScore(score float64) risk.Scorer {
	return scorerFunc(func(context.Context, transfer.Features) (float64, error) { return score, nil })
}

type converterFunc func(context.Context, decimal.Decimal, string, string) (decimal.Decimal, error)

func (f converterFunc) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	return f(ctx, amount, from, to)
}

type fixture struct {
	svc    Service
	store  *memory.AuditStore
	ledger *MockLedger
}

func newFixture(t *testing.T, scorer risk.Scorer, opts ...func(*Dependencies, *Config)) *fixture {
	t.Helper()

	rates, err := bridge.ParseRates("GHS/NGN=70")
	require.NoError(t, err)
	br, err := bridge.NewService(rates)
	require.NoError(t, err)

	store := memory.NewAuditStore()
	led := new(MockLedger)
	deps := Dependencies{
		Store:    store,
		Locker:   memory.NewLocker(),
		Assessor: risk.NewEngine(scorer, memory.NewFeatureStore(time.Hour), risk.Config{Timeout: time.Second}, nil),
		Bridge:   br,
		Ledger:   led,
	}
	cfg := Config{LedgerTimeout: time.Second, DefaultCurrency: "GHS"}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}
	return &fixture{svc: NewService(deps, cfg), store: store, ledger: led}
}

func amountOf(n int64) interface{} {
	want := decimal.NewFromInt(n)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}

func domesticRequest(id string) transfer.Request {
	return transfer.Request{
		ID:                  id,
		Sender:              "A",
		Receiver:            "B",
		Amount:              decimal.NewFromInt(100),
		SourceCurrency:      "GHS",
		DestinationCurrency: "GHS",
	}
}

func TestSubmit_LowRiskDomesticCommits(t *testing.T) {
	f := newFixture(t, fixedScore(0.1))
	f.ledger.On("Transfer", mock.Anything, "A", "B", amountOf(100), "tx-a").Return("ledger-1", nil).Once()

	out, err := f.svc.Submit(context.Background(), domesticRequest("tx-a"))
	require.NoError(t, err)

	assert.Equal(t, transfer.StatusCommitted, out.Status)
	assert.Equal(t, "ledger-1", out.LedgerRef)
	assert.True(t, out.SettledAmount.Equal(decimal.NewFromInt(100)))
	assert.False(t, out.ConvertedAmount.Valid)
	assert.Equal(t, 1, f.store.CommittedCount())
	assert.Equal(t, 0, f.store.FlaggedCount())

	rec, err := f.svc.Get(context.Background(), "tx-a")
	require.NoError(t, err)
	assert.Equal(t, rec.ComputeDigest(), rec.Digest)

	_, err = f.store.GetClaim(context.Background(), "tx-a")
	assert.ErrorIs(t, err, repositories.ErrRecordNotFound)
	f.ledger.AssertExpectations(t)
}

func TestSubmit_HighRiskIsFlaggedWithoutLedgerCall(t *testing.T) {
	f := newFixture(t, fixedScore(0.95))

	out, err := f.svc.Submit(context.Background(), domesticRequest("tx-b"))
	assert.Nil(t, out)
	require.ErrorIs(t, err, domainerrors.ErrTransferFlagged)

	score, ok := domainerrors.ScoreOf(err)
	require.True(t, ok)
	assert.True(t, score.Equal(decimal.NewFromFloat(0.95)))

	assert.Equal(t, 1, f.store.FlaggedCount())
	assert.Equal(t, 0, f.store.CommittedCount())
	f.ledger.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	rec, err := f.svc.GetFlagged(context.Background(), "tx-b")
	require.NoError(t, err)
	assert.Equal(t, 0.95, rec.Assessment.Score)

	// A flagged transfer stays flagged on resubmission.
	_, err = f.svc.Submit(context.Background(), domesticRequest("tx-b"))
	assert.ErrorIs(t, err, domainerrors.ErrTransferFlagged)
	assert.Equal(t, 1, f.store.FlaggedCount())
}

func TestSubmit_CrossBorderSettlesConvertedAmount(t *testing.T) {
	f := newFixture(t, fixedScore(0.1))
	f.ledger.On("Transfer", mock.Anything, "A", "B", amountOf(7000), "tx-c").Return("ledger-2", nil).Once()

	req := domesticRequest("tx-c")
	req.DestinationCurrency = "NGN"
	out, err := f.svc.Submit(context.Background(), req)
	require.NoError(t, err)

	require.True(t, out.ConvertedAmount.Valid)
	assert.True(t, out.ConvertedAmount.Decimal.Equal(decimal.NewFromInt(7000)))
	assert.True(t, out.SettledAmount.Equal(decimal.NewFromInt(7000)))
	f.ledger.AssertExpectations(t)
}

func TestSubmit_LedgerTimeoutIsIndeterminate(t *testing.T) {
	f := newFixture(t, fixedScore(0.1), func(_ *Dependencies, cfg *Config) {
		cfg.LedgerTimeout = 50 * time.Millisecond
	})
	f.ledger.On("Transfer", mock.Anything, "A", "B", mock.Anything, "tx-d").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.DeadlineExceeded).Once()

	_, err := f.svc.Submit(context.Background(), domesticRequest("tx-d"))
	require.ErrorIs(t, err, domainerrors.ErrSettlementIndeterminate)
	assert.Equal(t, 0, f.store.CommittedCount())

	claim, err := f.store.GetClaim(context.Background(), "tx-d")
	require.NoError(t, err)
	assert.Equal(t, "tx-d", claim.TransferID)

	// The orchestrator never retries on its own; resubmission reports the
	// same indeterminate state.
	_, err = f.svc.Submit(context.Background(), domesticRequest("tx-d"))
	assert.ErrorIs(t, err, domainerrors.ErrSettlementIndeterminate)
	f.ledger.AssertNumberOfCalls(t, "Transfer", 1)
}

func TestSubmit_LateLedgerConfirmationCommits(t *testing.T) {
	f := newFixture(t, fixedScore(0.1), func(_ *Dependencies, cfg *Config) {
		cfg.LedgerTimeout = 50 * time.Millisecond
	})
	f.ledger.On("Transfer", mock.Anything, "A", "B", amountOf(100), "tx-late").
		Run(func(mock.Arguments) { time.Sleep(80 * time.Millisecond) }).
		Return("ledger-ok", nil).Once()

	out, err := f.svc.Submit(context.Background(), domesticRequest("tx-late"))
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCommitted, out.Status)
	assert.Equal(t, "ledger-ok", out.LedgerRef)
	assert.Equal(t, 1, f.store.CommittedCount())

	_, err = f.store.GetClaim(context.Background(), "tx-late")
	assert.ErrorIs(t, err, repositories.ErrRecordNotFound)
	f.ledger.AssertExpectations(t)
}

type flakyCommitStore struct {
	*memory.AuditStore
	mu   sync.Mutex
	down bool
}

func (s *flakyCommitStore) setDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *flakyCommitStore) AppendCommitted(ctx context.Context, rec *transfer.AuditRecord) (uint64, error) {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		return 0, repositories.ErrStoreUnavailable
	}
	return s.AuditStore.AppendCommitted(ctx, rec)
}

func TestSubmit_AuditFailureAfterCommitIsIndeterminate(t *testing.T) {
	var store *flakyCommitStore
	f := newFixture(t, fixedScore(0.1), func(deps *Dependencies, _ *Config) {
		store = &flakyCommitStore{AuditStore: deps.Store.(*memory.AuditStore), down: true}
		deps.Store = store
	})
	f.ledger.On("Transfer", mock.Anything, "A", "B", amountOf(100), "tx-q").Return("ledger-q", nil).Once()

	_, err := f.svc.Submit(context.Background(), domesticRequest("tx-q"))
	require.ErrorIs(t, err, domainerrors.ErrSettlementIndeterminate)
	assert.ErrorIs(t, err, domainerrors.ErrAuditStoreUnavailable)
	de, ok := domainerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "ledger-q", de.LedgerRef)
	assert.Equal(t, 0, f.store.CommittedCount())

	_, err = f.store.GetClaim(context.Background(), "tx-q")
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), domesticRequest("tx-q"))
	assert.ErrorIs(t, err, domainerrors.ErrSettlementIndeterminate)
	f.ledger.AssertNumberOfCalls(t, "Transfer", 1)

	store.setDown(false)
	f.ledger.On("QueryHistory", mock.Anything, "A").Return([]ledger.Entry{
		{TxID: "ledger-q", Reference: "tx-q", Sender: "A", Receiver: "B", Amount: decimal.NewFromInt(100)},
	}, nil).Once()

	out, err := f.svc.Reconcile(context.Background(), "tx-q")
	require.NoError(t, err)
	assert.Equal(t, "ledger-q", out.LedgerRef)
	assert.Equal(t, 1, f.store.CommittedCount())

	_, err = f.store.GetClaim(context.Background(), "tx-q")
	assert.ErrorIs(t, err, repositories.ErrRecordNotFound)
	f.ledger.AssertNumberOfCalls(t, "Transfer", 1)
}

func TestSubmit_ReplaysCommittedOutcome(t *testing.T) {
	f := newFixture(t, fixedScore(0.1))
	f.ledger.On("Transfer", mock.Anything, "A", "B", mock.Anything, "tx-r").Return("ledger-3", nil).Once()

	first, err := f.svc.Submit(context.Background(), domesticRequest("tx-r"))
	require.NoError(t, err)

	second, err := f.svc.Submit(context.Background(), domesticRequest("tx-r"))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.LedgerRef, second.LedgerRef)
	f.ledger.AssertNumberOfCalls(t, "Transfer", 1)
}

func TestSubmit_SameIDDifferentContentConflicts(t *testing.T) {
	f := newFixture(t, fixedScore(0.1))
	f.ledger.On("Transfer", mock.Anything, "A", "B", mock.Anything, "tx-x").Return("ledger-4", nil).Once()

	_, err := f.svc.Submit(context.Background(), domesticRequest("tx-x"))
	require.NoError(t, err)

	changed := domesticRequest("tx-x")
	changed.Amount = decimal.NewFromInt(101)
	_, err = f.svc.Submit(context.Background(), changed)
	assert.ErrorIs(t, err, domainerrors.ErrIdempotencyConflict)
	f.ledger.AssertNumberOfCalls(t, "Transfer", 1)
}

func TestSubmit_UnsupportedPairNeverReachesLedger(t *testing.T) {
	f := newFixture(t, fixedScore(0.1))

	req := domesticRequest("tx-u")
	req.DestinationCurrency = "USD"
	_, err := f.svc.Submit(context.Background(), req)
	require.ErrorIs(t, err, domainerrors.ErrUnsupportedCurrencyPair)

	de, ok := domainerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "GHS/USD", de.Pair.String())
	f.ledger.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_LedgerErrorsReleaseClaim(t *testing.T) {
	tests := []struct {
		name    string
		ledgErr error
		want    error
	}{
		{name: "rejected", ledgErr: ledger.ErrRejected, want: domainerrors.ErrLedgerRejected},
		{name: "unavailable", ledgErr: ledger.ErrUnavailable, want: domainerrors.ErrLedgerUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixedScore(0.1))
			f.ledger.On("Transfer", mock.Anything, "A", "B", mock.Anything, "tx-l").Return("", tt.ledgErr)

			_, err := f.svc.Submit(context.Background(), domesticRequest("tx-l"))
			require.ErrorIs(t, err, tt.want)

			_, err = f.store.GetClaim(context.Background(), "tx-l")
			assert.ErrorIs(t, err, repositories.ErrRecordNotFound)
			assert.Equal(t, 0, f.store.CommittedCount())
		})
	}
}

func TestSubmit_ScorerFaultFailsClosed(t *testing.T) {
	down := scorerFunc(func(context.Context, transfer.Features) (float64, error) {
		return 0, errors.New("model offline")
	})
	f := newFixture(t, down)

	_, err := f.svc.Submit(context.Background(), domesticRequest("tx-s"))
	require.ErrorIs(t, err, domainerrors.ErrScoringUnavailable)
	assert.ErrorIs(t, err, domainerrors.ErrTransferFlagged)

	rec, err := f.svc.GetFlagged(context.Background(), "tx-s")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.Assessment.Score)
	assert.Equal(t, transfer.ReasonScoringUnavailable, rec.Assessment.Reason)
	f.ledger.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_CancelledDuringScoringRecordsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow := scorerFunc(func(sctx context.Context, _ transfer.Features) (float64, error) {
		cancel()
		<-sctx.Done()
		return 0, sctx.Err()
	})
	f := newFixture(t, slow)

	_, err := f.svc.Submit(ctx, domesticRequest("tx-gone"))
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domainerrors.ErrScoringUnavailable)
	assert.Equal(t, 0, f.store.FlaggedCount())

	_, err = f.svc.GetFlagged(context.Background(), "tx-gone")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	f.ledger.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_CancelledBeforeLedgerLeavesNoClaim(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, fixedScore(0.1), func(deps *Dependencies, _ *Config) {
		deps.Bridge = converterFunc(func(_ context.Context, amount decimal.Decimal, _, _ string) (decimal.Decimal, error) {
			cancel()
			return amount.Mul(decimal.NewFromInt(70)), nil
		})
	})

	req := domesticRequest("tx-cancel")
	req.DestinationCurrency = "NGN"
	_, err := f.svc.Submit(ctx, req)
	require.ErrorIs(t, err, context.Canceled)

	_, err = f.store.GetClaim(context.Background(), "tx-cancel")
	assert.ErrorIs(t, err, repositories.ErrRecordNotFound)
	f.ledger.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_ConcurrentSameIDSettlesOnce(t *testing.T) {
	f := newFixture(t, fixedScore(0.1))
	f.ledger.On("Transfer", mock.Anything, "A", "B", mock.Anything, "tx-par").
		Run(func(mock.Arguments) { time.Sleep(20 * time.Millisecond) }).
		Return("ledger-5", nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(context.Background(), domesticRequest("tx-par"))
			if err != nil {
				assert.ErrorIs(t, err, domainerrors.ErrSettlementInProgress)
			}
		}()
	}
	wg.Wait()

	f.ledger.AssertNumberOfCalls(t, "Transfer", 1)
	assert.Equal(t, 1, f.store.CommittedCount())
}

func TestSubmit_InvalidRequest(t *testing.T) {
	f := newFixture(t, fixedScore(0.1))

	tests := []struct {
		name string
		mod  func(*transfer.Request)
	}{
		{name: "zero amount", mod: func(r *transfer.Request) { r.Amount = decimal.Zero }},
		{name: "negative amount", mod: func(r *transfer.Request) { r.Amount = decimal.NewFromInt(-5) }},
		{name: "missing sender", mod: func(r *transfer.Request) { r.Sender = "" }},
		{name: "self transfer", mod: func(r *transfer.Request) { r.Receiver = r.Sender }},
		{name: "bad currency", mod: func(r *transfer.Request) { r.SourceCurrency = "GH1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := domesticRequest("tx-bad")
			tt.mod(&req)
			_, err := f.svc.Submit(context.Background(), req)
			assert.ErrorIs(t, err, &domainerrors.DomainError{Code: domainerrors.CodeInvalidRequest})
		})
	}
}

func TestSubmit_DefaultsIDAndCurrency(t *testing.T) {
	f := newFixture(t, fixedScore(0.1))
	f.ledger.On("Transfer", mock.Anything, "A", "B", mock.Anything, mock.AnythingOfType("string")).Return("ledger-6", nil).Once()

	req := domesticRequest("")
	req.SourceCurrency, req.DestinationCurrency = "", ""
	out, err := f.svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, out.TransferID)

	rec, err := f.svc.Get(context.Background(), out.TransferID)
	require.NoError(t, err)
	assert.Equal(t, "GHS", rec.Request.SourceCurrency)
	assert.Equal(t, "GHS", rec.Request.DestinationCurrency)
}

func TestReconcile(t *testing.T) {
	indeterminate := func(t *testing.T) *fixture {
		f := newFixture(t, fixedScore(0.1))
		f.ledger.On("Transfer", mock.Anything, "A", "B", mock.Anything, "tx-rec").
			Return("", ledger.ErrOutcomeUnknown).Once()
		_, err := f.svc.Submit(context.Background(), domesticRequest("tx-rec"))
		require.ErrorIs(t, err, domainerrors.ErrSettlementIndeterminate)
		return f
	}

	t.Run("found on ledger records commit", func(t *testing.T) {
		f := indeterminate(t)
		f.ledger.On("QueryHistory", mock.Anything, "A").Return([]ledger.Entry{
			{TxID: "ledger-9", Reference: "tx-rec", Sender: "A", Receiver: "B", Amount: decimal.NewFromInt(100)},
		}, nil).Once()

		out, err := f.svc.Reconcile(context.Background(), "tx-rec")
		require.NoError(t, err)
		assert.Equal(t, "ledger-9", out.LedgerRef)
		assert.Equal(t, 1, f.store.CommittedCount())

		// Once recorded, resubmission replays.
		again, err := f.svc.Submit(context.Background(), domesticRequest("tx-rec"))
		require.NoError(t, err)
		assert.True(t, again.Replayed)
		f.ledger.AssertNumberOfCalls(t, "Transfer", 1)
	})

	t.Run("absent from ledger allows resubmission", func(t *testing.T) {
		f := indeterminate(t)
		f.ledger.On("QueryHistory", mock.Anything, "A").Return([]ledger.Entry{}, nil).Once()

		_, err := f.svc.Reconcile(context.Background(), "tx-rec")
		require.ErrorIs(t, err, domainerrors.ErrNotSettled)

		f.ledger.On("Transfer", mock.Anything, "A", "B", mock.Anything, "tx-rec").Return("ledger-10", nil).Once()
		out, err := f.svc.Submit(context.Background(), domesticRequest("tx-rec"))
		require.NoError(t, err)
		assert.Equal(t, "ledger-10", out.LedgerRef)
	})

	t.Run("ledger down keeps claim", func(t *testing.T) {
		f := indeterminate(t)
		f.ledger.On("QueryHistory", mock.Anything, "A").Return(nil, ledger.ErrUnavailable).Once()

		_, err := f.svc.Reconcile(context.Background(), "tx-rec")
		require.ErrorIs(t, err, domainerrors.ErrLedgerUnavailable)

		_, err = f.store.GetClaim(context.Background(), "tx-rec")
		assert.NoError(t, err)
	})

	t.Run("unknown transfer", func(t *testing.T) {
		f := newFixture(t, fixedScore(0.1))
		_, err := f.svc.Reconcile(context.Background(), "nope")
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	})
}

func TestAssess_RecordsFlaggedOnly(t *testing.T) {
	low := newFixture(t, fixedScore(0.2))
	a, err := low.svc.Assess(context.Background(), domesticRequest("tx-check"))
	require.NoError(t, err)
	assert.Equal(t, transfer.DecisionClear, a.Decision)
	assert.Equal(t, 0, low.store.FlaggedCount())

	high := newFixture(t, fixedScore(0.9))
	a, err = high.svc.Assess(context.Background(), domesticRequest("tx-check"))
	require.NoError(t, err)
	assert.Equal(t, transfer.DecisionFlagged, a.Decision)
	assert.Equal(t, 1, high.store.FlaggedCount())
}

func TestList_ClampsLimit(t *testing.T) {
	f := newFixture(t, fixedScore(0.1))
	f.ledger.On("Transfer", mock.Anything, "A", "B", mock.Anything, mock.Anything).Return("ref", nil)

	for _, id := range []string{"l-1", "l-2", "l-3"} {
		_, err := f.svc.Submit(context.Background(), domesticRequest(id))
		require.NoError(t, err)
	}

	recs, total, err := f.svc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, recs, 3)

	recs, _, err = f.svc.List(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
