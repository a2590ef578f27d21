package handlers

import (
	"github.com/gofiber/fiber/v2"

	"fintrust/internal/services/settlement"
	"fintrust/internal/utils/response"
)

type FraudHandler struct {
	settlement settlement.Service
}

func NewFraudHandler(svc settlement.Service) *FraudHandler {
	return &FraudHandler{settlement: svc}
}

// CheckFraud scores a transfer without settling it.
func (h *FraudHandler) CheckFraud(c *fiber.Ctx) error {
	var input transferRequest
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	a, err := h.settlement.Assess(c.UserContext(), input.toDomain())
	if err != nil {
		return response.DomainError(c, err)
	}
	return c.JSON(fiber.Map{
		"tx_id":       a.TransferID,
		"fraud_score": a.Score,
		"status":      a.Decision,
		"reason":      a.Reason,
	})
}

func (h *FraudHandler) GetFraudAlert(c *fiber.Ctx) error {
	rec, err := h.settlement.GetFlagged(c.UserContext(), c.Params("tx_id"))
	if err != nil {
		return response.DomainError(c, err)
	}
	return c.JSON(newFlaggedView(rec))
}
