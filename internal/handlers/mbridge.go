package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fintrust/internal/services/bridge"
	"fintrust/internal/services/settlement"
	"fintrust/internal/utils/response"
)

type BridgeHandler struct {
	bridge  settlement.Converter
	timeout time.Duration
	log     *zap.Logger
}

func NewBridgeHandler(converter settlement.Converter, timeout time.Duration, log *zap.Logger) *BridgeHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = settlement.DefaultBridgeTimeout
	}
	return &BridgeHandler{bridge: converter, timeout: timeout, log: log}
}

// Settle converts an amount between currencies. It never touches the ledger.
func (h *BridgeHandler) Settle(c *fiber.Ctx) error {
	var input struct {
		TxID         string          `json:"tx_id"`
		Amount       decimal.Decimal `json:"amount"`
		FromCurrency string          `json:"from_currency"`
		ToCurrency   string          `json:"to_currency"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if !input.Amount.IsPositive() {
		return response.BadRequest(c, "amount must be a positive amount")
	}
	from := strings.ToUpper(strings.TrimSpace(input.FromCurrency))
	to := strings.ToUpper(strings.TrimSpace(input.ToCurrency))
	if from == "" || to == "" {
		return response.BadRequest(c, "from_currency and to_currency are required")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	settled, err := h.bridge.Convert(ctx, input.Amount, from, to)
	if err != nil {
		if errors.Is(err, bridge.ErrUnsupportedCurrencyPair) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"tx_id":         input.TxID,
				"from_currency": from,
				"to_currency":   to,
				"status":        "unsupported currency pair",
			})
		}
		h.log.Error("bridge conversion failed", zap.String("tx_id", input.TxID), zap.Error(err))
		return response.Error(c, fiber.StatusServiceUnavailable, "bridge settlement unavailable")
	}

	return c.JSON(fiber.Map{
		"tx_id":           input.TxID,
		"from_currency":   from,
		"to_currency":     to,
		"original_amount": input.Amount,
		"settled_amount":  settled,
		"status":          "settled",
	})
}
