package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"fintrust/internal/services/ledger"
	"fintrust/internal/services/settlement"
	"fintrust/internal/utils/pagination"
	"fintrust/internal/utils/response"
)

type TransactionHandler struct {
	settlement   settlement.Service
	ledger       ledger.Client
	queryTimeout time.Duration
	log          *zap.Logger
}

func NewTransactionHandler(svc settlement.Service, ledgerClient ledger.Client, queryTimeout time.Duration, log *zap.Logger) *TransactionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if queryTimeout <= 0 {
		queryTimeout = settlement.DefaultLedgerTimeout
	}
	return &TransactionHandler{settlement: svc, ledger: ledgerClient, queryTimeout: queryTimeout, log: log}
}

// CreateTransaction settles a transfer and returns the persisted record.
func (h *TransactionHandler) CreateTransaction(c *fiber.Ctx) error {
	var input transferRequest
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	ctx := c.UserContext()
	out, err := h.settlement.Submit(ctx, input.toDomain())
	if err != nil {
		return response.DomainError(c, err)
	}

	rec, err := h.settlement.Get(ctx, out.TransferID)
	if err != nil {
		// Committed on the ledger and in the audit store; only the read back failed.
		h.log.Warn("failed to read back committed transfer", zap.String("tx_id", out.TransferID), zap.Error(err))
		return c.JSON(out)
	}
	view := newTransactionView(rec)
	view.Replayed = out.Replayed
	return c.JSON(view)
}

func (h *TransactionHandler) ListTransactions(c *fiber.Ctx) error {
	p := pagination.ParseFromRequest(c)

	recs, total, err := h.settlement.List(c.UserContext(), p.Offset, p.Limit)
	if err != nil {
		return response.DomainError(c, err)
	}
	p.Total = total

	views := make([]transactionView, 0, len(recs))
	for i := range recs {
		views = append(views, newTransactionView(&recs[i]))
	}
	return c.JSON(pagination.Response(p, views))
}

func (h *TransactionHandler) GetTransaction(c *fiber.Ctx) error {
	rec, err := h.settlement.Get(c.UserContext(), c.Params("tx_id"))
	if err != nil {
		return response.DomainError(c, err)
	}
	return c.JSON(newTransactionView(rec))
}

func (h *TransactionHandler) ReconcileTransaction(c *fiber.Ctx) error {
	out, err := h.settlement.Reconcile(c.UserContext(), c.Params("tx_id"))
	if err != nil {
		return response.DomainError(c, err)
	}
	return c.JSON(out)
}

func (h *TransactionHandler) GetBalance(c *fiber.Ctx) error {
	account := c.Params("account")
	ctx, cancel := context.WithTimeout(c.UserContext(), h.queryTimeout)
	defer cancel()

	balance, err := h.ledger.QueryBalance(ctx, account)
	if err != nil {
		return h.ledgerError(c, "query balance", account, err)
	}
	return c.JSON(fiber.Map{"account": account, "balance": balance})
}

func (h *TransactionHandler) GetHistory(c *fiber.Ctx) error {
	account := c.Params("account")
	ctx, cancel := context.WithTimeout(c.UserContext(), h.queryTimeout)
	defer cancel()

	entries, err := h.ledger.QueryHistory(ctx, account)
	if err != nil {
		return h.ledgerError(c, "query history", account, err)
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	return c.JSON(fiber.Map{"account": account, "history": entries})
}

func (h *TransactionHandler) GetAccount(c *fiber.Ctx) error {
	account := c.Params("account")
	ctx, cancel := context.WithTimeout(c.UserContext(), h.queryTimeout)
	defer cancel()

	acc, err := h.ledger.QueryAccount(ctx, account)
	if err != nil {
		return h.ledgerError(c, "query account", account, err)
	}
	return c.JSON(acc)
}

func (h *TransactionHandler) InitLedger(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.queryTimeout)
	defer cancel()

	if err := h.ledger.InitLedger(ctx); err != nil {
		return h.ledgerError(c, "init ledger", "", err)
	}
	return response.Success(c, "Ledger initialized", ledger.SeedAccounts)
}

func (h *TransactionHandler) ledgerError(c *fiber.Ctx, op, account string, err error) error {
	if errors.Is(err, ledger.ErrNotFound) {
		return response.NotFound(c, "account not found")
	}
	h.log.Error("ledger call failed", zap.String("op", op), zap.String("account", account), zap.Error(err))
	return response.ServerError(c, "Failed to "+op)
}
