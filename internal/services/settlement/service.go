// Package settlement runs a transfer through risk assessment, bridge
// conversion, ledger submission and audit recording.
package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fintrust/internal/domain/transfer"
	domainerrors "fintrust/internal/errors"
	"fintrust/internal/repositories"
	"fintrust/internal/services/bridge"
	"fintrust/internal/services/events"
	"fintrust/internal/services/ledger"
	"fintrust/internal/utils/validation"
)

// Config holds the per-call deadlines and defaults of the pipeline.
type Config struct {
	BridgeTimeout   time.Duration
	LedgerTimeout   time.Duration
	AuditTimeout    time.Duration
	LockTTL         time.Duration
	DefaultCurrency string
}

// Dependencies groups the collaborators of the settlement service.
type Dependencies struct {
	Store     AuditStore
	Locker    Locker
	Assessor  Assessor
	Bridge    Converter
	Ledger    ledger.Client
	Cache     RecordCache
	Publisher events.Publisher
	Metrics   MetricsCollector
	Logger    *zap.Logger
}

type service struct {
	store     AuditStore
	locker    Locker
	assessor  Assessor
	bridge    Converter
	ledger    ledger.Client
	cache     RecordCache
	publisher events.Publisher
	metrics   MetricsCollector
	log       *zap.Logger
	cfg       Config
	now       func() time.Time
}

// NewService creates the settlement service. Store, Locker, Assessor, Bridge
// and Ledger are required.
func NewService(deps Dependencies, cfg Config) Service {
	if deps.Store == nil {
		panic("audit store is required")
	}
	if deps.Locker == nil {
		panic("locker is required")
	}
	if deps.Assessor == nil {
		panic("assessor is required")
	}
	if deps.Bridge == nil {
		panic("bridge is required")
	}
	if deps.Ledger == nil {
		panic("ledger client is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = &events.NoopPublisher{Log: deps.Logger}
	}
	if deps.Metrics == nil {
		deps.Metrics = &NoopMetricsCollector{}
	}

	if cfg.BridgeTimeout <= 0 {
		cfg.BridgeTimeout = DefaultBridgeTimeout
	}
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = DefaultLedgerTimeout
	}
	if cfg.AuditTimeout <= 0 {
		cfg.AuditTimeout = DefaultAuditTimeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	cfg.DefaultCurrency = strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency))
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = DefaultCurrency
	}

	return &service{
		store:     deps.Store,
		locker:    deps.Locker,
		assessor:  deps.Assessor,
		bridge:    deps.Bridge,
		ledger:    deps.Ledger,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		log:       deps.Logger.With(zap.String("component", "settlement")),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Submit settles req at most once.
func (s *service) Submit(ctx context.Context, req transfer.Request) (*transfer.Outcome, error) {
	start := s.now()
	defer func() { s.metrics.RecordStageDuration(StageTotal, s.now().Sub(start)) }()

	req = s.normalize(req)
	if err := validation.Struct(req); err != nil {
		return nil, domainerrors.InvalidRequest(err.Error())
	}
	log := s.log.With(zap.String("tx_id", req.ID))

	release, err := s.lock(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx, req.ID, release)

	if out, err := s.checkPrior(ctx, req); out != nil || err != nil {
		return out, err
	}

	// Received -> Scored
	scoreStart := s.now()
	assessment, scoreErr := s.assessor.Assess(ctx, req)
	s.metrics.RecordStageDuration(StageScoring, s.now().Sub(scoreStart))
	if err := ctx.Err(); err != nil {
		// caller gone, not a scorer fault
		log.Info("submission cancelled during scoring", zap.Error(err))
		return nil, err
	}
	s.assessor.Observe(context.WithoutCancel(ctx), req)
	s.metrics.RecordRiskScore(assessment.Score)

	if assessment.Flagged() {
		if err := s.recordFlagged(ctx, req, assessment); err != nil {
			log.Error("failed to record flagged transfer", zap.Error(err))
			s.metrics.RecordOutcome(OutcomeFailed)
			return nil, domainerrors.AuditStoreUnavailable(req.ID, err)
		}
		s.metrics.RecordOutcome(OutcomeFlagged)
		log.Info("transfer flagged",
			zap.Float64("fraud_score", assessment.Score),
			zap.String("reason", assessment.Reason))
		if scoreErr != nil {
			return nil, domainerrors.ScoringUnavailable(req.ID, scoreErr)
		}
		return nil, domainerrors.TransferFlagged(req.ID, assessment.Score)
	}

	// Scored -> Converting
	settled := req.Amount
	var converted decimal.NullDecimal
	if req.CrossBorder() {
		amount, err := s.convert(ctx, req)
		if err != nil {
			if errors.Is(err, domainerrors.ErrUnsupportedCurrencyPair) {
				s.metrics.RecordOutcome(OutcomeRejected)
			} else {
				s.metrics.RecordOutcome(OutcomeFailed)
			}
			log.Warn("bridge conversion failed", zap.Error(err))
			return nil, err
		}
		settled = amount
		converted = decimal.NewNullDecimal(amount)
	}

	// Settling
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claim := transfer.Claim{
		TransferID:      req.ID,
		Fingerprint:     req.Fingerprint(),
		Request:         req,
		SettledAmount:   settled,
		ConvertedAmount: converted,
		RiskScore:       assessment.Score,
		ClaimedAt:       s.now().UTC(),
	}
	if err := s.claim(ctx, claim); err != nil {
		return nil, err
	}

	ledgerStart := s.now()
	ref, err := s.submitToLedger(ctx, req, settled)
	s.metrics.RecordStageDuration(StageLedger, s.now().Sub(ledgerStart))
	if err != nil {
		return nil, s.ledgerFailure(ctx, req, assessment, err)
	}
	s.metrics.RecordLedgerCall("transfer", "ok")

	// Settling -> Recorded
	outcome := &transfer.Outcome{
		TransferID:      req.ID,
		LedgerRef:       ref,
		SettledAmount:   settled,
		ConvertedAmount: converted,
		Status:          transfer.StatusCommitted,
		CompletedAt:     s.now().UTC(),
	}
	rec := &transfer.AuditRecord{
		Kind:       transfer.RecordCommitted,
		Request:    req,
		Assessment: &assessment,
		Outcome:    outcome,
		RecordedAt: outcome.CompletedAt,
	}
	if err := s.recordCommitted(ctx, rec); err != nil {
		log.Error("ledger committed but audit append failed",
			zap.String("ledger_ref", ref), zap.Error(err))
		s.metrics.RecordOutcome(OutcomeIndeterminate)
		s.publish(ctx, events.TransferIndeterminate, req, assessment, ref, "audit_unavailable")
		return nil, domainerrors.SettlementIndeterminate(req.ID, ref, domainerrors.AuditStoreUnavailable(req.ID, err))
	}
	s.releaseClaim(ctx, req.ID)

	if s.cache != nil {
		s.cache.SetRecord(context.WithoutCancel(ctx), rec)
	}
	s.publishOutcome(ctx, events.TransferCommitted, req, assessment, outcome)
	s.metrics.RecordOutcome(OutcomeCommitted)
	log.Info("transfer settled",
		zap.String("ledger_ref", ref),
		zap.String("settled_amount", settled.String()))
	return outcome, nil
}

// Assess scores req without settling it. A flagged assessment is appended to
// the flagged log before it is returned.
func (s *service) Assess(ctx context.Context, req transfer.Request) (*transfer.RiskAssessment, error) {
	req = s.normalize(req)
	if err := validation.Struct(req); err != nil {
		return nil, domainerrors.InvalidRequest(err.Error())
	}

	assessment, scoreErr := s.assessor.Assess(ctx, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.metrics.RecordRiskScore(assessment.Score)
	if scoreErr != nil {
		s.log.Warn("standalone assessment failed closed", zap.String("tx_id", req.ID), zap.Error(scoreErr))
	}
	if assessment.Flagged() {
		if err := s.recordFlagged(ctx, req, assessment); err != nil {
			return nil, domainerrors.AuditStoreUnavailable(req.ID, err)
		}
	}
	return &assessment, nil
}

// Get returns the committed record for transferID.
func (s *service) Get(ctx context.Context, transferID string) (*transfer.AuditRecord, error) {
	if s.cache != nil {
		if rec, ok := s.cache.GetRecord(ctx, transferID); ok {
			return rec, nil
		}
	}
	rec, err := s.store.GetByTransferID(ctx, transferID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, domainerrors.NotFound("transaction", transferID)
		}
		return nil, domainerrors.AuditStoreUnavailable(transferID, err)
	}
	if rec.Kind != transfer.RecordCommitted {
		return nil, domainerrors.NotFound("transaction", transferID)
	}
	if s.cache != nil {
		s.cache.SetRecord(ctx, rec)
	}
	return rec, nil
}

// GetFlagged returns the latest flagged record for transferID.
func (s *service) GetFlagged(ctx context.Context, transferID string) (*transfer.AuditRecord, error) {
	rec, err := s.store.GetFlagged(ctx, transferID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, domainerrors.NotFound("fraud alert", transferID)
		}
		return nil, domainerrors.AuditStoreUnavailable(transferID, err)
	}
	return rec, nil
}

func (s *service) List(ctx context.Context, offset, limit int) ([]transfer.AuditRecord, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	recs, total, err := s.store.ListCommitted(ctx, offset, limit)
	if err != nil {
		return nil, 0, domainerrors.AuditStoreUnavailable("", err)
	}
	return recs, total, nil
}

// Reconcile resolves an outstanding settlement claim against ledger history.
func (s *service) Reconcile(ctx context.Context, transferID string) (*transfer.Outcome, error) {
	release, err := s.lock(ctx, transferID)
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx, transferID, release)

	log := s.log.With(zap.String("tx_id", transferID))

	claim, err := s.store.GetClaim(ctx, transferID)
	if err != nil {
		if !errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, domainerrors.AuditStoreUnavailable(transferID, err)
		}
		rec, err := s.Get(ctx, transferID)
		if err != nil {
			return nil, err
		}
		out := *rec.Outcome
		out.Replayed = true
		return &out, nil
	}

	qctx, cancel := context.WithTimeout(ctx, s.cfg.LedgerTimeout)
	entries, err := s.ledger.QueryHistory(qctx, claim.Request.Sender)
	cancel()
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		entries = nil
	case err != nil:
		s.metrics.RecordLedgerCall("query_history", "unavailable")
		return nil, domainerrors.LedgerUnavailable(transferID, err)
	}
	s.metrics.RecordLedgerCall("query_history", "ok")

	entry, found := ledger.FindReference(entries, transferID)
	if !found {
		s.releaseClaim(ctx, transferID)
		log.Info("claim released, transfer not on ledger")
		return nil, domainerrors.NotSettled(transferID)
	}

	outcome := &transfer.Outcome{
		TransferID:      transferID,
		LedgerRef:       entry.TxID,
		SettledAmount:   claim.SettledAmount,
		ConvertedAmount: claim.ConvertedAmount,
		Status:          transfer.StatusCommitted,
		CompletedAt:     s.now().UTC(),
	}
	rec := &transfer.AuditRecord{
		Kind:    transfer.RecordCommitted,
		Request: claim.Request,
		Assessment: &transfer.RiskAssessment{
			TransferID: transferID,
			Score:      claim.RiskScore,
			Decision:   transfer.DecisionClear,
			Reason:     transfer.ReasonModel,
		},
		Outcome:    outcome,
		RecordedAt: outcome.CompletedAt,
	}
	if err := s.recordCommitted(ctx, rec); err != nil && !errors.Is(err, repositories.ErrDuplicate) {
		return nil, domainerrors.AuditStoreUnavailable(transferID, err)
	}
	s.releaseClaim(ctx, transferID)

	s.publishOutcome(ctx, events.TransferReconciled, claim.Request, *rec.Assessment, outcome)
	s.metrics.RecordOutcome(OutcomeReconciled)
	log.Info("transfer reconciled", zap.String("ledger_ref", entry.TxID))
	return outcome, nil
}

func (s *service) normalize(req transfer.Request) transfer.Request {
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Sender = strings.TrimSpace(req.Sender)
	req.Receiver = strings.TrimSpace(req.Receiver)
	req.SourceCurrency = strings.ToUpper(strings.TrimSpace(req.SourceCurrency))
	req.DestinationCurrency = strings.ToUpper(strings.TrimSpace(req.DestinationCurrency))
	if req.SourceCurrency == "" {
		req.SourceCurrency = s.cfg.DefaultCurrency
	}
	if req.DestinationCurrency == "" {
		req.DestinationCurrency = req.SourceCurrency
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = s.now().UTC()
	}
	return req
}

func (s *service) lock(ctx context.Context, transferID string) (func(context.Context) error, error) {
	release, err := s.locker.Acquire(ctx, transferID, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, repositories.ErrLockHeld) {
			return nil, domainerrors.SettlementInProgress(transferID)
		}
		return nil, domainerrors.AuditStoreUnavailable(transferID, err)
	}
	return release, nil
}

func (s *service) unlock(ctx context.Context, transferID string, release func(context.Context) error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := release(rctx); err != nil {
		s.log.Warn("failed to release settlement lock", zap.String("tx_id", transferID), zap.Error(err))
	}
}

// checkPrior resolves a request whose id has been seen before. A nil outcome
// and nil error mean the request is new.
func (s *service) checkPrior(ctx context.Context, req transfer.Request) (*transfer.Outcome, error) {
	fingerprint := req.Fingerprint()

	rec, err := s.store.GetByTransferID(ctx, req.ID)
	switch {
	case err == nil:
		if rec.Request.Fingerprint() != fingerprint {
			return nil, domainerrors.IdempotencyConflict(req.ID)
		}
		if rec.Kind == transfer.RecordCommitted && rec.Outcome != nil {
			out := *rec.Outcome
			out.Replayed = true
			s.metrics.RecordOutcome(OutcomeReplayed)
			return &out, nil
		}
		if rec.Assessment != nil && rec.Assessment.Reason != transfer.ReasonScoringUnavailable {
			return nil, domainerrors.TransferFlagged(req.ID, rec.Assessment.Score)
		}
	case errors.Is(err, repositories.ErrRecordNotFound):
	default:
		return nil, domainerrors.AuditStoreUnavailable(req.ID, err)
	}

	claim, err := s.store.GetClaim(ctx, req.ID)
	switch {
	case err == nil:
		if claim.Fingerprint != fingerprint {
			return nil, domainerrors.IdempotencyConflict(req.ID)
		}
		return nil, domainerrors.SettlementIndeterminate(req.ID, "", nil)
	case errors.Is(err, repositories.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, domainerrors.AuditStoreUnavailable(req.ID, err)
	}
}

func (s *service) convert(ctx context.Context, req transfer.Request) (decimal.Decimal, error) {
	start := s.now()
	cctx, cancel := context.WithTimeout(ctx, s.cfg.BridgeTimeout)
	defer cancel()

	amount, err := s.bridge.Convert(cctx, req.Amount, req.SourceCurrency, req.DestinationCurrency)
	s.metrics.RecordStageDuration(StageBridge, s.now().Sub(start))
	if err != nil {
		if errors.Is(err, bridge.ErrUnsupportedCurrencyPair) {
			return decimal.Zero, domainerrors.UnsupportedCurrencyPair(req.ID, req.SourceCurrency, req.DestinationCurrency)
		}
		return decimal.Zero, domainerrors.BridgeUnavailable(req.ID, err)
	}
	return amount, nil
}

func (s *service) claim(ctx context.Context, c transfer.Claim) error {
	actx, cancel := context.WithTimeout(ctx, s.cfg.AuditTimeout)
	defer cancel()

	if err := s.store.ClaimSettlement(actx, c); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return domainerrors.SettlementInProgress(c.TransferID)
		}
		return domainerrors.AuditStoreUnavailable(c.TransferID, err)
	}
	return nil
}

func (s *service) releaseClaim(ctx context.Context, transferID string) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.AuditTimeout)
	defer cancel()
	if err := s.store.ReleaseClaim(actx, transferID); err != nil {
		s.log.Warn("failed to release settlement claim", zap.String("tx_id", transferID), zap.Error(err))
	}
}

// submitToLedger makes the single ledger call for a transfer. The call is
// detached from the caller's cancellation so it is never abandoned halfway.
// A confirmed reference is trusted even if it arrives after the deadline.
func (s *service) submitToLedger(ctx context.Context, req transfer.Request, amount decimal.Decimal) (string, error) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.LedgerTimeout)
	defer cancel()

	return s.ledger.Transfer(lctx, req.Sender, req.Receiver, amount, req.ID)
}

func (s *service) ledgerFailure(ctx context.Context, req transfer.Request, assessment transfer.RiskAssessment, err error) error {
	log := s.log.With(zap.String("tx_id", req.ID))
	switch {
	case errors.Is(err, ledger.ErrRejected):
		s.releaseClaim(ctx, req.ID)
		s.metrics.RecordLedgerCall("transfer", "rejected")
		s.metrics.RecordOutcome(OutcomeRejected)
		log.Warn("ledger rejected transfer", zap.Error(err))
		return domainerrors.LedgerRejected(req.ID, err)
	case errors.Is(err, ledger.ErrUnavailable):
		s.releaseClaim(ctx, req.ID)
		s.metrics.RecordLedgerCall("transfer", "unavailable")
		s.metrics.RecordOutcome(OutcomeFailed)
		log.Warn("ledger unavailable", zap.Error(err))
		return domainerrors.LedgerUnavailable(req.ID, err)
	}

	s.metrics.RecordLedgerCall("transfer", "unknown")
	s.metrics.RecordOutcome(OutcomeIndeterminate)
	log.Error("ledger outcome unknown, claim kept for reconciliation", zap.Error(err))
	s.publish(ctx, events.TransferIndeterminate, req, assessment, "", "ledger_outcome_unknown")
	return domainerrors.SettlementIndeterminate(req.ID, "", err)
}

func (s *service) recordFlagged(ctx context.Context, req transfer.Request, assessment transfer.RiskAssessment) error {
	rec := &transfer.AuditRecord{
		Kind:       transfer.RecordFlagged,
		Request:    req,
		Assessment: &assessment,
		RecordedAt: s.now().UTC(),
	}
	rec.Digest = rec.ComputeDigest()

	start := s.now()
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.AuditTimeout)
	defer cancel()
	_, err := s.store.AppendFlagged(actx, rec)
	s.metrics.RecordStageDuration(StageAudit, s.now().Sub(start))
	if err != nil {
		return err
	}

	s.publish(ctx, events.TransferFlagged, req, assessment, "", assessment.Reason)
	return nil
}

func (s *service) recordCommitted(ctx context.Context, rec *transfer.AuditRecord) error {
	rec.Digest = rec.ComputeDigest()

	start := s.now()
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.AuditTimeout)
	defer cancel()
	_, err := s.store.AppendCommitted(actx, rec)
	s.metrics.RecordStageDuration(StageAudit, s.now().Sub(start))
	return err
}

func (s *service) publishOutcome(ctx context.Context, key string, req transfer.Request, assessment transfer.RiskAssessment, out *transfer.Outcome) {
	s.publishEvent(ctx, key, events.TransferEvent{
		TransferID: req.ID,
		Status:     string(out.Status),
		Sender:     req.Sender,
		Receiver:   req.Receiver,
		Amount:     req.Amount.String(),
		Settled:    out.SettledAmount.String(),
		Score:      assessment.Score,
		LedgerRef:  out.LedgerRef,
		OccurredAt: out.CompletedAt,
	})
}

func (s *service) publish(ctx context.Context, key string, req transfer.Request, assessment transfer.RiskAssessment, ledgerRef, reason string) {
	status := string(transfer.StatusFlagged)
	if key == events.TransferIndeterminate {
		status = OutcomeIndeterminate
	}
	s.publishEvent(ctx, key, events.TransferEvent{
		TransferID: req.ID,
		Status:     status,
		Sender:     req.Sender,
		Receiver:   req.Receiver,
		Amount:     req.Amount.String(),
		Score:      assessment.Score,
		LedgerRef:  ledgerRef,
		Reason:     reason,
		OccurredAt: s.now().UTC(),
	})
}

// publishEvent is best effort; a broker fault never changes a settlement
// result.
func (s *service) publishEvent(ctx context.Context, key string, ev events.TransferEvent) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), key, ev); err != nil {
		s.log.Warn("failed to publish event",
			zap.String("routing_key", key),
			zap.String("tx_id", ev.TransferID),
			zap.Error(err))
	}
}
