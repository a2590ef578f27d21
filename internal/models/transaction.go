package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record statuses
const (
	TransactionStatusCommitted = "committed"
	FlaggedStatus              = "flagged"
)

// Transaction is a committed transfer. Rows are only ever inserted.
type Transaction struct {
	ID                  uint                `gorm:"primarykey" json:"id"`
	TxID                string              `gorm:"uniqueIndex;size:128;not null" json:"tx_id"`
	Sender              string              `gorm:"index;size:128;not null" json:"sender"`
	Receiver            string              `gorm:"index;size:128;not null" json:"receiver"`
	Amount              decimal.Decimal     `gorm:"type:numeric(24,8);not null" json:"amount"`
	SourceCurrency      string              `gorm:"size:3;not null" json:"from_currency"`
	DestinationCurrency string              `gorm:"size:3;not null" json:"to_currency"`
	SettledAmount       decimal.Decimal     `gorm:"type:numeric(24,8);not null" json:"settled_amount"`
	ConvertedAmount     decimal.NullDecimal `gorm:"type:numeric(24,8)" json:"converted_amount"`
	LedgerRef           string              `gorm:"size:128" json:"ledger_ref"`
	RiskScore           float64             `json:"risk_score"`
	DeviceID            string              `gorm:"size:128" json:"device_id,omitempty"`
	Fingerprint         string              `gorm:"size:64;not null" json:"-"`
	Digest              string              `gorm:"size:64;not null" json:"digest"`
	Status              string              `gorm:"not null;default:'committed'" json:"status"`
	Corrects            string              `gorm:"size:128" json:"corrects,omitempty"`
	SubmittedAt         time.Time           `json:"submitted_at"`
	Timestamp           time.Time           `gorm:"not null" json:"timestamp"`
}

// FlaggedTransfer is the fraud log entry for a risk-gated transfer. The
// serial ID preserves insertion order.
type FlaggedTransfer struct {
	ID                  uint            `gorm:"primarykey" json:"id"`
	TxID                string          `gorm:"index;size:128;not null" json:"tx_id"`
	Sender              string          `gorm:"size:128;not null" json:"sender"`
	Receiver            string          `gorm:"size:128;not null" json:"receiver"`
	Amount              decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"amount"`
	SourceCurrency      string          `gorm:"size:3" json:"from_currency"`
	DestinationCurrency string          `gorm:"size:3" json:"to_currency"`
	DeviceID            string          `gorm:"size:128" json:"device_id,omitempty"`
	FraudScore          float64         `gorm:"not null" json:"fraud_score"`
	Reason              string          `gorm:"size:64" json:"reason"`
	Features            JSON            `gorm:"type:jsonb" json:"features"`
	Fingerprint         string          `gorm:"size:64;not null" json:"-"`
	Digest              string          `gorm:"size:64;not null" json:"digest"`
	Status              string          `gorm:"not null;default:'flagged'" json:"status"`
	SubmittedAt         time.Time       `json:"submitted_at"`
	Timestamp           time.Time       `gorm:"not null" json:"timestamp"`
}

// SettlementClaim exists while a ledger transfer is in flight or its outcome
// is unknown. The primary key makes the insert conditional.
type SettlementClaim struct {
	TxID                string              `gorm:"primaryKey;size:128"`
	Fingerprint         string              `gorm:"size:64;not null"`
	Sender              string              `gorm:"size:128;not null"`
	Receiver            string              `gorm:"size:128;not null"`
	Amount              decimal.Decimal     `gorm:"type:numeric(24,8);not null"`
	SourceCurrency      string              `gorm:"size:3"`
	DestinationCurrency string              `gorm:"size:3"`
	DeviceID            string              `gorm:"size:128"`
	SettledAmount       decimal.Decimal     `gorm:"type:numeric(24,8);not null"`
	ConvertedAmount     decimal.NullDecimal `gorm:"type:numeric(24,8)"`
	RiskScore           float64
	SubmittedAt         time.Time
	ClaimedAt           time.Time `gorm:"not null"`
}
