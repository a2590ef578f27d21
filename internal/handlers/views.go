package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"fintrust/internal/domain/transfer"
)

type transferRequest struct {
	TxID         string          `json:"tx_id"`
	Sender       string          `json:"sender"`
	Receiver     string          `json:"receiver"`
	Amount       decimal.Decimal `json:"amount"`
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	DeviceID     string          `json:"device_id"`
}

func (r transferRequest) toDomain() transfer.Request {
	return transfer.Request{
		ID:                  r.TxID,
		Sender:              r.Sender,
		Receiver:            r.Receiver,
		Amount:              r.Amount,
		SourceCurrency:      r.FromCurrency,
		DestinationCurrency: r.ToCurrency,
		DeviceID:            r.DeviceID,
	}
}

type transactionView struct {
	TxID            string              `json:"tx_id"`
	Sender          string              `json:"sender"`
	Receiver        string              `json:"receiver"`
	Amount          decimal.Decimal     `json:"amount"`
	FromCurrency    string              `json:"from_currency"`
	ToCurrency      string              `json:"to_currency"`
	SettledAmount   decimal.Decimal     `json:"settled_amount"`
	ConvertedAmount decimal.NullDecimal `json:"converted_amount"`
	LedgerRef       string              `json:"ledger_ref"`
	FraudScore      float64             `json:"fraud_score"`
	Status          transfer.Status     `json:"status"`
	Digest          string              `json:"digest"`
	Timestamp       time.Time           `json:"timestamp"`
	Replayed        bool                `json:"replayed,omitempty"`
}

func newTransactionView(rec *transfer.AuditRecord) transactionView {
	v := transactionView{
		TxID:         rec.Request.ID,
		Sender:       rec.Request.Sender,
		Receiver:     rec.Request.Receiver,
		Amount:       rec.Request.Amount,
		FromCurrency: rec.Request.SourceCurrency,
		ToCurrency:   rec.Request.DestinationCurrency,
		Digest:       rec.Digest,
		Timestamp:    rec.RecordedAt,
	}
	if rec.Assessment != nil {
		v.FraudScore = rec.Assessment.Score
	}
	if rec.Outcome != nil {
		v.SettledAmount = rec.Outcome.SettledAmount
		v.ConvertedAmount = rec.Outcome.ConvertedAmount
		v.LedgerRef = rec.Outcome.LedgerRef
		v.Status = rec.Outcome.Status
		v.Replayed = rec.Outcome.Replayed
	}
	return v
}

type flaggedView struct {
	TxID       string            `json:"tx_id"`
	Sender     string            `json:"sender"`
	Receiver   string            `json:"receiver"`
	Amount     decimal.Decimal   `json:"amount"`
	FraudScore float64           `json:"fraud_score"`
	Reason     string            `json:"reason"`
	Features   transfer.Features `json:"features"`
	Status     transfer.Status   `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
}

func newFlaggedView(rec *transfer.AuditRecord) flaggedView {
	v := flaggedView{
		TxID:      rec.Request.ID,
		Sender:    rec.Request.Sender,
		Receiver:  rec.Request.Receiver,
		Amount:    rec.Request.Amount,
		Status:    transfer.StatusFlagged,
		Timestamp: rec.RecordedAt,
	}
	if rec.Assessment != nil {
		v.FraudScore = rec.Assessment.Score
		v.Reason = rec.Assessment.Reason
		v.Features = rec.Assessment.Features
	}
	return v
}
