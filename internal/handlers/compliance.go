package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	domainerrors "fintrust/internal/errors"
	"fintrust/internal/services/compliance"
	"fintrust/internal/services/settlement"
	"fintrust/internal/utils/response"
)

type ComplianceHandler struct {
	settlement settlement.Service
	archive    *compliance.Archive
	log        *zap.Logger
}

func NewComplianceHandler(svc settlement.Service, archive *compliance.Archive, log *zap.Logger) *ComplianceHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ComplianceHandler{settlement: svc, archive: archive, log: log}
}

// GetReport renders the AML report for a committed or flagged transfer,
// archives it and returns the PDF.
func (h *ComplianceHandler) GetReport(c *fiber.Ctx) error {
	txID := c.Params("tx_id")
	ctx := c.UserContext()

	rec, err := h.settlement.Get(ctx, txID)
	if errors.Is(err, domainerrors.ErrNotFound) {
		rec, err = h.settlement.GetFlagged(ctx, txID)
	}
	if err != nil {
		return response.DomainError(c, err)
	}

	pdf, err := compliance.Render(rec)
	if err != nil {
		h.log.Error("failed to render report", zap.String("tx_id", txID), zap.Error(err))
		return response.ServerError(c, "Failed to render report")
	}

	name, err := h.archive.Save(rec.Request.ID, pdf)
	if err != nil {
		if errors.Is(err, compliance.ErrInvalidReportID) {
			return response.BadRequest(c, "invalid transaction id")
		}
		h.log.Error("failed to archive report", zap.String("tx_id", txID), zap.Error(err))
		return response.ServerError(c, "Failed to archive report")
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Send(pdf)
}

func (h *ComplianceHandler) ListReports(c *fiber.Ctx) error {
	reports, err := h.archive.List()
	if err != nil {
		h.log.Error("failed to list reports", zap.Error(err))
		return response.ServerError(c, "Failed to list reports")
	}
	return c.JSON(reports)
}

// DownloadReport returns a previously archived report.
func (h *ComplianceHandler) DownloadReport(c *fiber.Ctx) error {
	data, err := h.archive.Load(c.Params("tx_id"))
	switch {
	case errors.Is(err, compliance.ErrInvalidReportID):
		return response.BadRequest(c, "invalid transaction id")
	case errors.Is(err, compliance.ErrReportNotFound):
		return response.NotFound(c, "report not found")
	case err != nil:
		h.log.Error("failed to load report", zap.Error(err))
		return response.ServerError(c, "Failed to load report")
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	return c.Send(data)
}

func (h *ComplianceHandler) GetAMLStatus(c *fiber.Ctx) error {
	return c.JSON(compliance.StatusFor(c.Params("account")))
}
