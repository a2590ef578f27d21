package transfer

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

type Decision string
type Status string
type RecordKind string

const (
	DecisionClear   Decision = "clear"
	DecisionFlagged Decision = "flagged"

	StatusCommitted Status = "committed"
	StatusRejected  Status = "rejected"
	StatusFlagged   Status = "flagged"

	RecordFlagged   RecordKind = "flagged"
	RecordCommitted RecordKind = "committed"
)

// Assessment reasons
const (
	ReasonModel              = "model"
	ReasonScoringUnavailable = "scoring_unavailable"
)

// Request is a single transfer submitted for settlement. It is not mutated
// once the orchestrator has accepted it.
type Request struct {
	ID                  string          `json:"tx_id"`
	Sender              string          `json:"sender" validate:"required,max=128"`
	Receiver            string          `json:"receiver" validate:"required,max=128,nefield=Sender"`
	Amount              decimal.Decimal `json:"amount" validate:"dgt0"`
	SourceCurrency      string          `json:"from_currency" validate:"omitempty,len=3,alpha"`
	DestinationCurrency string          `json:"to_currency" validate:"omitempty,len=3,alpha"`
	DeviceID            string          `json:"device_id,omitempty" validate:"max=128"`
	SubmittedAt         time.Time       `json:"submitted_at"`
}

// CrossBorder reports whether the request needs a bridge conversion.
func (r Request) CrossBorder() bool {
	return r.SourceCurrency != r.DestinationCurrency
}

// Fingerprint identifies the economic content of a request. Two requests with
// the same id must share a fingerprint.
func (r Request) Fingerprint() string {
	parts := []string{
		r.Sender,
		r.Receiver,
		r.Amount.String(),
		strings.ToUpper(r.SourceCurrency),
		strings.ToUpper(r.DestinationCurrency),
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// Features are the inputs handed to a risk scorer.
type Features struct {
	Amount       float64 `json:"amount"`
	TxPerHour    float64 `json:"tx_per_hour"`
	DeviceIDFreq float64 `json:"device_id_freq"`
	IsForeign    float64 `json:"is_foreign"`
}

// RiskAssessment is produced once per scored request.
type RiskAssessment struct {
	TransferID  string    `json:"tx_id"`
	Score       float64   `json:"fraud_score"`
	Decision    Decision  `json:"decision"`
	Reason      string    `json:"reason"`
	Features    Features  `json:"features"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

func (a RiskAssessment) Flagged() bool {
	return a.Decision == DecisionFlagged
}

// Outcome is the terminal result of a settled or refused transfer.
type Outcome struct {
	TransferID      string              `json:"tx_id"`
	LedgerRef       string              `json:"ledger_ref,omitempty"`
	SettledAmount   decimal.Decimal     `json:"settled_amount"`
	ConvertedAmount decimal.NullDecimal `json:"converted_amount"`
	Status          Status              `json:"status"`
	CompletedAt     time.Time           `json:"completed_at"`
	Replayed        bool                `json:"replayed,omitempty"`
}

// AuditRecord is either a flagged assessment or a committed settlement.
type AuditRecord struct {
	ID         uint64          `json:"id"`
	Kind       RecordKind      `json:"kind"`
	Request    Request         `json:"request"`
	Assessment *RiskAssessment `json:"assessment,omitempty"`
	Outcome    *Outcome        `json:"outcome,omitempty"`
	Corrects   string          `json:"corrects,omitempty"`
	Digest     string          `json:"digest"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// ComputeDigest hashes the fields that make up the record's evidence.
func (r AuditRecord) ComputeDigest() string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(string(r.Kind)))
	h.Write([]byte{0x1f})
	h.Write([]byte(r.Request.ID))
	h.Write([]byte{0x1f})
	h.Write([]byte(r.Request.Fingerprint()))
	if r.Assessment != nil {
		h.Write([]byte{0x1f})
		h.Write([]byte(decimal.NewFromFloat(r.Assessment.Score).String()))
		h.Write([]byte(r.Assessment.Reason))
	}
	if r.Outcome != nil {
		h.Write([]byte{0x1f})
		h.Write([]byte(r.Outcome.LedgerRef))
		h.Write([]byte(r.Outcome.SettledAmount.String()))
	}
	h.Write([]byte(r.Corrects))
	return hex.EncodeToString(h.Sum(nil))
}

// Claim marks a transfer whose ledger call has begun and not yet been
// recorded.
type Claim struct {
	TransferID      string              `json:"tx_id"`
	Fingerprint     string              `json:"fingerprint"`
	Request         Request             `json:"request"`
	SettledAmount   decimal.Decimal     `json:"settled_amount"`
	ConvertedAmount decimal.NullDecimal `json:"converted_amount"`
	RiskScore       float64             `json:"risk_score"`
	ClaimedAt       time.Time           `json:"claimed_at"`
}
