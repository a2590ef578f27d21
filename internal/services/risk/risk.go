// Package risk scores transfers for fraud and turns scores into clear or
// flagged decisions.
package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"fintrust/internal/domain/transfer"
)

// DefaultThreshold is the score at or above which a transfer is flagged.
const DefaultThreshold = 0.8

var (
	ErrInvalidScore  = errors.New("scorer returned a score outside [0,1]")
	ErrScorerTimeout = errors.New("scorer timed out")
)

// Scorer returns a fraud score in [0,1] for a transfer's features.
type Scorer interface {
	Score(ctx context.Context, f transfer.Features) (float64, error)
}

// FeatureStore supplies and records the behavioural features.
type FeatureStore interface {
	SenderVelocity(ctx context.Context, sender string) (int64, error)
	DeviceReuse(ctx context.Context, deviceID string) (int64, error)
	Observe(ctx context.Context, sender, deviceID string) error
	Window() time.Duration
}

// Config for the assessment engine.
type Config struct {
	Threshold float64
	Timeout   time.Duration
}

// Engine gathers features, calls the scorer under a deadline and applies the
// threshold. Scorer faults fail closed.
type Engine struct {
	scorer   Scorer
	features FeatureStore
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
}

func NewEngine(scorer Scorer, features FeatureStore, cfg Config, log *zap.Logger) *Engine {
	if scorer == nil {
		panic("scorer is required")
	}
	if features == nil {
		panic("feature store is required")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{scorer: scorer, features: features, cfg: cfg, log: log, now: time.Now}
}

func (e *Engine) Threshold() float64 { return e.cfg.Threshold }

// Assess produces the single assessment for req. The returned error is
// non-nil only when the assessment was forced to Flagged because scoring
// could not complete.
func (e *Engine) Assess(ctx context.Context, req transfer.Request) (transfer.RiskAssessment, error) {
	a := transfer.RiskAssessment{TransferID: req.ID, Reason: transfer.ReasonModel}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	f, err := e.Features(ctx, req)
	if err == nil {
		a.Features = f
		a.Score, err = e.score(ctx, f)
	}
	a.EvaluatedAt = e.now().UTC()

	if err != nil {
		e.log.Warn("scoring failed, holding transfer",
			zap.String("tx_id", req.ID), zap.Error(err))
		a.Score = 1
		a.Decision = transfer.DecisionFlagged
		a.Reason = transfer.ReasonScoringUnavailable
		return a, err
	}

	a.Decision = transfer.DecisionClear
	if a.Score >= e.cfg.Threshold {
		a.Decision = transfer.DecisionFlagged
	}
	return a, nil
}

// Observe records the transfer in the feature store. Failures are logged.
func (e *Engine) Observe(ctx context.Context, req transfer.Request) {
	if err := e.features.Observe(ctx, req.Sender, req.DeviceID); err != nil {
		e.log.Warn("feature store update failed", zap.String("tx_id", req.ID), zap.Error(err))
	}
}

// Features builds the scorer input for req.
func (e *Engine) Features(ctx context.Context, req transfer.Request) (transfer.Features, error) {
	velocity, err := e.features.SenderVelocity(ctx, req.Sender)
	if err != nil {
		return transfer.Features{}, fmt.Errorf("sender velocity: %w", err)
	}
	reuse, err := e.features.DeviceReuse(ctx, req.DeviceID)
	if err != nil {
		return transfer.Features{}, fmt.Errorf("device reuse: %w", err)
	}

	perHour := float64(velocity)
	if w := e.features.Window(); w > 0 {
		perHour = float64(velocity) * float64(time.Hour) / float64(w)
	}
	f := transfer.Features{
		Amount:       req.Amount.InexactFloat64(),
		TxPerHour:    perHour,
		DeviceIDFreq: float64(reuse),
	}
	if req.CrossBorder() {
		f.IsForeign = 1
	}
	return f, nil
}

// score runs the scorer and stops waiting once ctx expires, even if the
// scorer ignores cancellation.
func (e *Engine) score(ctx context.Context, f transfer.Features) (float64, error) {
	type result struct {
		score float64
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := e.scorer.Score(ctx, f)
		ch <- result{s, err}
	}()

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: %v", ErrScorerTimeout, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return 0, r.err
		}
		if math.IsNaN(r.score) || r.score < 0 || r.score > 1 {
			return 0, fmt.Errorf("%w: %v", ErrInvalidScore, r.score)
		}
		return r.score, nil
	}
}
