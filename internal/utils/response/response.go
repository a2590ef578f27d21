package response

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	domainerrors "fintrust/internal/errors"
)

func Success(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(fiber.Map{
		"message": message,
		"data":    data,
	})
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, message)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, message)
}

func ServerError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, message)
}

// DomainError writes err with the status its kind maps to. Flagged,
// indeterminate and unsupported-pair errors carry their own body shapes.
func DomainError(c *fiber.Ctx, err error) error {
	de, ok := domainerrors.As(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Error(c, fiber.StatusRequestTimeout, "request cancelled")
		}
		return ServerError(c, "internal error")
	}

	switch {
	case errors.Is(de, domainerrors.ErrTransferFlagged):
		body := fiber.Map{"status": "flagged", "tx_id": de.TransferID, "code": de.Code}
		if de.Score != nil {
			body["fraud_score"] = *de.Score
		}
		return c.Status(de.Status()).JSON(body)
	case errors.Is(de, domainerrors.ErrSettlementIndeterminate):
		body := fiber.Map{"status": "indeterminate", "tx_id": de.TransferID, "code": de.Code, "error": de.Message}
		if de.LedgerRef != "" {
			body["ledger_ref"] = de.LedgerRef
		}
		return c.Status(de.Status()).JSON(body)
	case errors.Is(de, domainerrors.ErrUnsupportedCurrencyPair):
		body := fiber.Map{"status": "unsupported currency pair", "tx_id": de.TransferID, "code": de.Code}
		if de.Pair != nil {
			body["from_currency"] = de.Pair.From
			body["to_currency"] = de.Pair.To
		}
		return c.Status(de.Status()).JSON(body)
	}

	body := fiber.Map{"error": de.Message, "code": de.Code}
	if de.TransferID != "" {
		body["tx_id"] = de.TransferID
	}
	return c.Status(de.Status()).JSON(body)
}
