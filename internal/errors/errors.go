// Package errors defines the domain error taxonomy shared by the settlement
// pipeline and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// Kind classifies an error for retry and surfacing decisions.
type Kind string

const (
	KindPolicy        Kind = "policy_rejection"
	KindTransient     Kind = "transient"
	KindIndeterminate Kind = "indeterminate"
	KindConflict      Kind = "conflict"
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindFatal         Kind = "fatal_configuration"
)

// Error codes.
const (
	CodeTransferFlagged         = "TRANSFER_FLAGGED"
	CodeScoringUnavailable      = "SCORING_UNAVAILABLE"
	CodeUnsupportedCurrencyPair = "UNSUPPORTED_CURRENCY_PAIR"
	CodeLedgerRejected          = "LEDGER_REJECTED"
	CodeLedgerUnavailable       = "LEDGER_UNAVAILABLE"
	CodeBridgeUnavailable       = "BRIDGE_UNAVAILABLE"
	CodeAuditUnavailable        = "AUDIT_STORE_UNAVAILABLE"
	CodeIndeterminate           = "SETTLEMENT_INDETERMINATE"
	CodeIdempotencyConflict     = "IDEMPOTENCY_CONFLICT"
	CodeInProgress              = "SETTLEMENT_IN_PROGRESS"
	CodeInvalidRequest          = "INVALID_REQUEST"
	CodeNotFound                = "NOT_FOUND"
	CodeNotSettled              = "NOT_SETTLED"
	CodeConfiguration           = "CONFIGURATION"
)

// Sentinels for errors.Is matching. DomainError.Is compares codes, so a
// DomainError carrying extra detail still matches its sentinel.
var (
	ErrTransferFlagged         = &DomainError{Kind: KindPolicy, Code: CodeTransferFlagged}
	ErrScoringUnavailable      = &DomainError{Kind: KindTransient, Code: CodeScoringUnavailable}
	ErrUnsupportedCurrencyPair = &DomainError{Kind: KindPolicy, Code: CodeUnsupportedCurrencyPair}
	ErrLedgerRejected          = &DomainError{Kind: KindPolicy, Code: CodeLedgerRejected}
	ErrLedgerUnavailable       = &DomainError{Kind: KindTransient, Code: CodeLedgerUnavailable}
	ErrBridgeUnavailable       = &DomainError{Kind: KindTransient, Code: CodeBridgeUnavailable}
	ErrAuditStoreUnavailable   = &DomainError{Kind: KindTransient, Code: CodeAuditUnavailable}
	ErrSettlementIndeterminate = &DomainError{Kind: KindIndeterminate, Code: CodeIndeterminate}
	ErrIdempotencyConflict     = &DomainError{Kind: KindConflict, Code: CodeIdempotencyConflict}
	ErrSettlementInProgress    = &DomainError{Kind: KindConflict, Code: CodeInProgress}
	ErrNotFound                = &DomainError{Kind: KindNotFound, Code: CodeNotFound}
	ErrNotSettled              = &DomainError{Kind: KindNotFound, Code: CodeNotSettled}
)

// CurrencyPair is an ordered source/destination pair.
type CurrencyPair struct {
	From string `json:"from_currency"`
	To   string `json:"to_currency"`
}

func (p CurrencyPair) String() string {
	return p.From + "/" + p.To
}

// DomainError carries enough structured detail for a caller to act on a
// failed transfer without re-deriving it.
type DomainError struct {
	Kind       Kind
	Code       string
	Message    string
	TransferID string
	Score      *float64
	Pair       *CurrencyPair
	LedgerRef  string
	Cause      error
}

func (e *DomainError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.TransferID != "" {
		msg = fmt.Sprintf("%s (transfer %s)", msg, e.TransferID)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches on code, and a ScoringUnavailable error also counts as flagged
// because scoring faults fail closed.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if e.Code == t.Code {
		return true
	}
	return e.Code == CodeScoringUnavailable && t.Code == CodeTransferFlagged
}

// Status maps the error to an HTTP status code.
func (e *DomainError) Status() int {
	switch e.Code {
	case CodeTransferFlagged, CodeScoringUnavailable, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeUnsupportedCurrencyPair, CodeLedgerRejected:
		return http.StatusUnprocessableEntity
	case CodeIdempotencyConflict, CodeInProgress, CodeNotSettled:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeLedgerUnavailable, CodeBridgeUnavailable, CodeAuditUnavailable:
		return http.StatusServiceUnavailable
	case CodeIndeterminate:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the whole request may be resubmitted as is.
// A scoring fault is retryable: the resubmission is scored again.
func (e *DomainError) Retryable() bool {
	return e.Kind == KindTransient
}

func TransferFlagged(transferID string, score float64) *DomainError {
	return &DomainError{
		Kind:       KindPolicy,
		Code:       CodeTransferFlagged,
		Message:    fmt.Sprintf("transfer flagged for review (score %.4f)", score),
		TransferID: transferID,
		Score:      &score,
	}
}

func ScoringUnavailable(transferID string, cause error) *DomainError {
	score := 1.0
	return &DomainError{
		Kind:       KindTransient,
		Code:       CodeScoringUnavailable,
		Message:    "risk scoring unavailable, transfer held",
		TransferID: transferID,
		Score:      &score,
		Cause:      cause,
	}
}

func UnsupportedCurrencyPair(transferID, from, to string) *DomainError {
	return &DomainError{
		Kind:       KindPolicy,
		Code:       CodeUnsupportedCurrencyPair,
		Message:    "unsupported currency pair " + from + "/" + to,
		TransferID: transferID,
		Pair:       &CurrencyPair{From: from, To: to},
	}
}

func LedgerRejected(transferID string, cause error) *DomainError {
	return &DomainError{Kind: KindPolicy, Code: CodeLedgerRejected, Message: "ledger rejected transfer", TransferID: transferID, Cause: cause}
}

func LedgerUnavailable(transferID string, cause error) *DomainError {
	return &DomainError{Kind: KindTransient, Code: CodeLedgerUnavailable, Message: "ledger unavailable", TransferID: transferID, Cause: cause}
}

func BridgeUnavailable(transferID string, cause error) *DomainError {
	return &DomainError{Kind: KindTransient, Code: CodeBridgeUnavailable, Message: "bridge settlement unavailable", TransferID: transferID, Cause: cause}
}

func AuditStoreUnavailable(transferID string, cause error) *DomainError {
	return &DomainError{Kind: KindTransient, Code: CodeAuditUnavailable, Message: "audit store unavailable", TransferID: transferID, Cause: cause}
}

// SettlementIndeterminate is returned when the ledger may have committed the
// transfer but this attempt cannot confirm it. ledgerRef is set when the
// ledger did confirm but the audit write failed.
func SettlementIndeterminate(transferID, ledgerRef string, cause error) *DomainError {
	return &DomainError{
		Kind:       KindIndeterminate,
		Code:       CodeIndeterminate,
		Message:    "settlement outcome unknown, reconcile before resubmitting",
		TransferID: transferID,
		LedgerRef:  ledgerRef,
		Cause:      cause,
	}
}

func IdempotencyConflict(transferID string) *DomainError {
	return &DomainError{Kind: KindConflict, Code: CodeIdempotencyConflict, Message: "transfer id already used for a different transfer", TransferID: transferID}
}

func SettlementInProgress(transferID string) *DomainError {
	return &DomainError{Kind: KindConflict, Code: CodeInProgress, Message: "transfer is already being settled", TransferID: transferID}
}

func InvalidRequest(msg string) *DomainError {
	return &DomainError{Kind: KindValidation, Code: CodeInvalidRequest, Message: msg}
}

func NotFound(what, id string) *DomainError {
	return &DomainError{Kind: KindNotFound, Code: CodeNotFound, Message: what + " not found", TransferID: id}
}

func NotSettled(transferID string) *DomainError {
	return &DomainError{Kind: KindNotFound, Code: CodeNotSettled, Message: "transfer not found on ledger, safe to resubmit", TransferID: transferID}
}

// Fatal marks a configuration fault that must stop the service from serving.
func Fatal(setting string, cause error) *DomainError {
	return &DomainError{Kind: KindFatal, Code: CodeConfiguration, Message: "invalid configuration: " + setting, Cause: cause}
}

// As extracts a *DomainError from err.
func As(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// ScoreOf returns the risk score attached to err, if any.
func ScoreOf(err error) (decimal.Decimal, bool) {
	de, ok := As(err)
	if !ok || de.Score == nil {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(*de.Score), true
}
