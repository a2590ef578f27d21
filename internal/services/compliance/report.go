// Package compliance renders AML reports for audited transfers and keeps
// the archive of rendered documents.
package compliance

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"fintrust/internal/domain/transfer"
)

const reportTitle = "AML Compliance Report"

var ErrEmptyRecord = errors.New("audit record has no transfer")

// Render produces the PDF report for rec. Output depends only on rec.
func Render(rec *transfer.AuditRecord) ([]byte, error) {
	if rec == nil || rec.Request.ID == "" {
		return nil, ErrEmptyRecord
	}

	stamp := rec.RecordedAt
	if stamp.IsZero() {
		stamp = time.Unix(0, 0)
	}
	stamp = stamp.UTC()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.SetCreationDate(stamp)
	pdf.SetModificationDate(stamp)
	pdf.SetCatalogSort(true)
	pdf.SetTitle(reportTitle+" "+rec.Request.ID, true)
	pdf.SetCreator("fintrust", true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 12, reportTitle, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	for _, row := range reportRows(rec, stamp) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(50, 8, row[0], "1", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, row[1], "1", 1, "L", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.MultiCell(0, 5, "Record digest: "+rec.Digest, "", "L", false)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

func reportRows(rec *transfer.AuditRecord, stamp time.Time) [][2]string {
	req := rec.Request
	rows := [][2]string{
		{"Transaction ID", req.ID},
		{"Sender", req.Sender},
		{"Receiver", req.Receiver},
		{"Amount", req.Amount.String() + " " + req.SourceCurrency},
		{"Status", string(rec.Kind)},
	}
	if rec.Assessment != nil {
		rows = append(rows, [2]string{"Fraud Score", fmt.Sprintf("%.4f", rec.Assessment.Score)})
		if rec.Assessment.Reason != "" && rec.Assessment.Reason != transfer.ReasonModel {
			rows = append(rows, [2]string{"Reason", rec.Assessment.Reason})
		}
	}
	if out := rec.Outcome; out != nil {
		rows = append(rows, [2]string{"Settled Amount", out.SettledAmount.String() + " " + req.DestinationCurrency})
		rows = append(rows, [2]string{"Ledger Reference", out.LedgerRef})
	}
	if rec.Corrects != "" {
		rows = append(rows, [2]string{"Corrects", rec.Corrects})
	}
	return append(rows, [2]string{"Timestamp", stamp.Format(time.RFC3339)})
}
