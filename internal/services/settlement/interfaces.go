package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fintrust/internal/domain/transfer"
)

// AuditStore is the append-only record of flagged and committed transfers,
// plus the claim table that guards the ledger call.
type AuditStore interface {
	AppendFlagged(ctx context.Context, rec *transfer.AuditRecord) (uint64, error)
	AppendCommitted(ctx context.Context, rec *transfer.AuditRecord) (uint64, error)
	GetByTransferID(ctx context.Context, id string) (*transfer.AuditRecord, error)
	GetFlagged(ctx context.Context, id string) (*transfer.AuditRecord, error)
	ListCommitted(ctx context.Context, offset, limit int) ([]transfer.AuditRecord, int64, error)

	ClaimSettlement(ctx context.Context, c transfer.Claim) error
	GetClaim(ctx context.Context, id string) (*transfer.Claim, error)
	ReleaseClaim(ctx context.Context, id string) error
}

// Locker serialises work on one transfer id across requests and instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Assessor produces the risk assessment for a transfer.
type Assessor interface {
	Assess(ctx context.Context, req transfer.Request) (transfer.RiskAssessment, error)
	Observe(ctx context.Context, req transfer.Request)
}

// Converter performs bridge conversion between currencies.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// RecordCache caches committed records, which never change once written.
type RecordCache interface {
	GetRecord(ctx context.Context, id string) (*transfer.AuditRecord, bool)
	SetRecord(ctx context.Context, rec *transfer.AuditRecord)
}

// Service is the settlement pipeline.
type Service interface {
	Submit(ctx context.Context, req transfer.Request) (*transfer.Outcome, error)
	Assess(ctx context.Context, req transfer.Request) (*transfer.RiskAssessment, error)
	Reconcile(ctx context.Context, transferID string) (*transfer.Outcome, error)
	Get(ctx context.Context, transferID string) (*transfer.AuditRecord, error)
	GetFlagged(ctx context.Context, transferID string) (*transfer.AuditRecord, error)
	List(ctx context.Context, offset, limit int) ([]transfer.AuditRecord, int64, error)
}
