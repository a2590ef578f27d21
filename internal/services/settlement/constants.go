package settlement

import "time"

// Default configuration values
const (
	DefaultBridgeTimeout = time.Second
	DefaultLedgerTimeout = 10 * time.Second
	DefaultAuditTimeout  = 3 * time.Second
	DefaultLockTTL       = 30 * time.Second
	DefaultCurrency      = "GHS"
	releaseTimeout       = 2 * time.Second
	maxListLimit         = 100
)

// Outcome labels used for metrics.
const (
	OutcomeCommitted     = "committed"
	OutcomeFlagged       = "flagged"
	OutcomeRejected      = "rejected"
	OutcomeIndeterminate = "indeterminate"
	OutcomeFailed        = "failed"
	OutcomeReplayed      = "replayed"
	OutcomeReconciled    = "reconciled"
)

// Pipeline stages used for duration metrics.
const (
	StageScoring = "scoring"
	StageBridge  = "bridge"
	StageLedger  = "ledger"
	StageAudit   = "audit"
	StageTotal   = "total"
)
