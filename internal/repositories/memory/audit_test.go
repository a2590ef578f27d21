package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrust/internal/domain/transfer"
	"fintrust/internal/repositories"
)

func committedRecord(id string) *transfer.AuditRecord {
	return &transfer.AuditRecord{
		Kind:    transfer.RecordCommitted,
		Request: transfer.Request{ID: id, Sender: "A", Receiver: "B", Amount: decimal.NewFromInt(100)},
		Outcome: &transfer.Outcome{TransferID: id, LedgerRef: id, Status: transfer.StatusCommitted, CompletedAt: time.Now()},
	}
}

func TestAuditStore_AppendCommittedIsUniquePerTransfer(t *testing.T) {
	s := NewAuditStore()
	ctx := context.Background()

	_, err := s.AppendCommitted(ctx, committedRecord("tx-1"))
	require.NoError(t, err)

	_, err = s.AppendCommitted(ctx, committedRecord("tx-1"))
	assert.ErrorIs(t, err, repositories.ErrDuplicate)
	assert.Equal(t, 1, s.CommittedCount())
}

func TestAuditStore_GetByTransferIDPrefersCommitted(t *testing.T) {
	s := NewAuditStore()
	ctx := context.Background()

	flagged := &transfer.AuditRecord{
		Kind:       transfer.RecordFlagged,
		Request:    transfer.Request{ID: "tx-2"},
		Assessment: &transfer.RiskAssessment{TransferID: "tx-2", Score: 0.9, Decision: transfer.DecisionFlagged},
	}
	_, err := s.AppendFlagged(ctx, flagged)
	require.NoError(t, err)

	rec, err := s.GetByTransferID(ctx, "tx-2")
	require.NoError(t, err)
	assert.Equal(t, transfer.RecordFlagged, rec.Kind)

	_, err = s.AppendCommitted(ctx, committedRecord("tx-2"))
	require.NoError(t, err)

	rec, err = s.GetByTransferID(ctx, "tx-2")
	require.NoError(t, err)
	assert.Equal(t, transfer.RecordCommitted, rec.Kind)

	_, err = s.GetByTransferID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrRecordNotFound)
}

func TestAuditStore_ClaimIsConditional(t *testing.T) {
	s := NewAuditStore()
	ctx := context.Background()

	require.NoError(t, s.ClaimSettlement(ctx, transfer.Claim{TransferID: "tx-3"}))
	assert.ErrorIs(t, s.ClaimSettlement(ctx, transfer.Claim{TransferID: "tx-3"}), repositories.ErrDuplicate)

	require.NoError(t, s.ReleaseClaim(ctx, "tx-3"))
	_, err := s.GetClaim(ctx, "tx-3")
	assert.ErrorIs(t, err, repositories.ErrRecordNotFound)
	assert.NoError(t, s.ClaimSettlement(ctx, transfer.Claim{TransferID: "tx-3"}))
}

func TestAuditStore_ListCommittedPaginates(t *testing.T) {
	s := NewAuditStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.AppendCommitted(ctx, committedRecord(id))
		require.NoError(t, err)
	}

	page, total, err := s.ListCommitted(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].Request.ID)

	page, _, err = s.ListCommitted(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].Request.ID)
}
