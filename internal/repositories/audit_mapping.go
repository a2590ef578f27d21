package repositories

import (
	"fintrust/internal/domain/transfer"
	"fintrust/internal/models"
)

func transactionModel(rec *transfer.AuditRecord) *models.Transaction {
	req, out := rec.Request, rec.Outcome
	row := &models.Transaction{
		TxID:                req.ID,
		Sender:              req.Sender,
		Receiver:            req.Receiver,
		Amount:              req.Amount,
		SourceCurrency:      req.SourceCurrency,
		DestinationCurrency: req.DestinationCurrency,
		SettledAmount:       out.SettledAmount,
		ConvertedAmount:     out.ConvertedAmount,
		LedgerRef:           out.LedgerRef,
		DeviceID:            req.DeviceID,
		Fingerprint:         req.Fingerprint(),
		Digest:              rec.Digest,
		Status:              models.TransactionStatusCommitted,
		Corrects:            rec.Corrects,
		SubmittedAt:         req.SubmittedAt,
		Timestamp:           out.CompletedAt,
	}
	if rec.Assessment != nil {
		row.RiskScore = rec.Assessment.Score
	}
	return row
}

func recordFromTransaction(row *models.Transaction) *transfer.AuditRecord {
	req := transfer.Request{
		ID:                  row.TxID,
		Sender:              row.Sender,
		Receiver:            row.Receiver,
		Amount:              row.Amount,
		SourceCurrency:      row.SourceCurrency,
		DestinationCurrency: row.DestinationCurrency,
		DeviceID:            row.DeviceID,
		SubmittedAt:         row.SubmittedAt,
	}
	return &transfer.AuditRecord{
		ID:      uint64(row.ID),
		Kind:    transfer.RecordCommitted,
		Request: req,
		Assessment: &transfer.RiskAssessment{
			TransferID: row.TxID,
			Score:      row.RiskScore,
			Decision:   transfer.DecisionClear,
			Reason:     transfer.ReasonModel,
		},
		Outcome: &transfer.Outcome{
			TransferID:      row.TxID,
			LedgerRef:       row.LedgerRef,
			SettledAmount:   row.SettledAmount,
			ConvertedAmount: row.ConvertedAmount,
			Status:          transfer.StatusCommitted,
			CompletedAt:     row.Timestamp,
		},
		Corrects:   row.Corrects,
		Digest:     row.Digest,
		RecordedAt: row.Timestamp,
	}
}

func flaggedModel(rec *transfer.AuditRecord) *models.FlaggedTransfer {
	req, a := rec.Request, rec.Assessment
	return &models.FlaggedTransfer{
		TxID:                req.ID,
		Sender:              req.Sender,
		Receiver:            req.Receiver,
		Amount:              req.Amount,
		SourceCurrency:      req.SourceCurrency,
		DestinationCurrency: req.DestinationCurrency,
		DeviceID:            req.DeviceID,
		FraudScore:          a.Score,
		Reason:              a.Reason,
		Features: models.JSON{
			"amount":         a.Features.Amount,
			"tx_per_hour":    a.Features.TxPerHour,
			"device_id_freq": a.Features.DeviceIDFreq,
			"is_foreign":     a.Features.IsForeign,
		},
		Fingerprint: req.Fingerprint(),
		Digest:      rec.Digest,
		Status:      models.FlaggedStatus,
		SubmittedAt: req.SubmittedAt,
		Timestamp:   a.EvaluatedAt,
	}
}

func recordFromFlagged(row *models.FlaggedTransfer) *transfer.AuditRecord {
	req := transfer.Request{
		ID:                  row.TxID,
		Sender:              row.Sender,
		Receiver:            row.Receiver,
		Amount:              row.Amount,
		SourceCurrency:      row.SourceCurrency,
		DestinationCurrency: row.DestinationCurrency,
		DeviceID:            row.DeviceID,
		SubmittedAt:         row.SubmittedAt,
	}
	return &transfer.AuditRecord{
		ID:      uint64(row.ID),
		Kind:    transfer.RecordFlagged,
		Request: req,
		Assessment: &transfer.RiskAssessment{
			TransferID:  row.TxID,
			Score:       row.FraudScore,
			Decision:    transfer.DecisionFlagged,
			Reason:      row.Reason,
			Features:    featuresFromJSON(row.Features),
			EvaluatedAt: row.Timestamp,
		},
		Digest:     row.Digest,
		RecordedAt: row.Timestamp,
	}
}

func featuresFromJSON(j models.JSON) transfer.Features {
	num := func(k string) float64 {
		if v, ok := j[k].(float64); ok {
			return v
		}
		return 0
	}
	return transfer.Features{
		Amount:       num("amount"),
		TxPerHour:    num("tx_per_hour"),
		DeviceIDFreq: num("device_id_freq"),
		IsForeign:    num("is_foreign"),
	}
}
