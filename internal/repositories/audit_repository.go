package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"fintrust/internal/domain/transfer"
	"fintrust/internal/models"
)

// AuditRepository persists flagged and committed transfers in postgres.
// Rows are inserted and read, never updated or deleted.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	if db == nil {
		panic("db is required")
	}
	return &AuditRepository{db: db}
}

func (r *AuditRepository) AppendFlagged(ctx context.Context, rec *transfer.AuditRecord) (uint64, error) {
	if rec.Assessment == nil {
		return 0, errors.New("flagged record requires an assessment")
	}
	row := flaggedModel(rec)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return 0, translate(err)
	}
	rec.ID = uint64(row.ID)
	return rec.ID, nil
}

func (r *AuditRepository) AppendCommitted(ctx context.Context, rec *transfer.AuditRecord) (uint64, error) {
	if rec.Outcome == nil {
		return 0, errors.New("committed record requires an outcome")
	}
	row := transactionModel(rec)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return 0, translate(err)
	}
	rec.ID = uint64(row.ID)
	return rec.ID, nil
}

// GetByTransferID returns the committed record for id, falling back to the
// most recent flagged record.
func (r *AuditRepository) GetByTransferID(ctx context.Context, id string) (*transfer.AuditRecord, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Where("tx_id = ?", id).First(&tx).Error
	if err == nil {
		return recordFromTransaction(&tx), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, translate(err)
	}
	return r.GetFlagged(ctx, id)
}

func (r *AuditRepository) GetFlagged(ctx context.Context, id string) (*transfer.AuditRecord, error) {
	var f models.FlaggedTransfer
	if err := r.db.WithContext(ctx).Where("tx_id = ?", id).Order("id DESC").First(&f).Error; err != nil {
		return nil, translate(err)
	}
	return recordFromFlagged(&f), nil
}

func (r *AuditRepository) ListCommitted(ctx context.Context, offset, limit int) ([]transfer.AuditRecord, int64, error) {
	var total int64
	q := r.db.WithContext(ctx).Model(&models.Transaction{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var rows []models.Transaction
	if err := q.Order("id DESC").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, translate(err)
	}
	out := make([]transfer.AuditRecord, 0, len(rows))
	for i := range rows {
		out = append(out, *recordFromTransaction(&rows[i]))
	}
	return out, total, nil
}

// ClaimSettlement inserts the claim row. A second claim for the same id
// fails with ErrDuplicate.
func (r *AuditRepository) ClaimSettlement(ctx context.Context, c transfer.Claim) error {
	row := &models.SettlementClaim{
		TxID:                c.TransferID,
		Fingerprint:         c.Fingerprint,
		Sender:              c.Request.Sender,
		Receiver:            c.Request.Receiver,
		Amount:              c.Request.Amount,
		SourceCurrency:      c.Request.SourceCurrency,
		DestinationCurrency: c.Request.DestinationCurrency,
		DeviceID:            c.Request.DeviceID,
		SettledAmount:       c.SettledAmount,
		ConvertedAmount:     c.ConvertedAmount,
		RiskScore:           c.RiskScore,
		SubmittedAt:         c.Request.SubmittedAt,
		ClaimedAt:           c.ClaimedAt,
	}
	return translate(r.db.WithContext(ctx).Create(row).Error)
}

func (r *AuditRepository) GetClaim(ctx context.Context, id string) (*transfer.Claim, error) {
	var row models.SettlementClaim
	if err := r.db.WithContext(ctx).Where("tx_id = ?", id).First(&row).Error; err != nil {
		return nil, translate(err)
	}
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
	return &transfer.Claim{
		TransferID:      row.TxID,
		Fingerprint:     row.Fingerprint,
		Request:         req,
		SettledAmount:   row.SettledAmount,
		ConvertedAmount: row.ConvertedAmount,
		RiskScore:       row.RiskScore,
		ClaimedAt:       row.ClaimedAt,
	}, nil
}

func (r *AuditRepository) ReleaseClaim(ctx context.Context, id string) error {
	return translate(r.db.WithContext(ctx).Where("tx_id = ?", id).Delete(&models.SettlementClaim{}).Error)
}

// Ping reports whether the database answers.
func (r *AuditRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
