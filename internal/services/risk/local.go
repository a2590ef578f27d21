package risk

import (
	"context"
	"math"

	"fintrust/internal/domain/transfer"
)

// Logistic model coefficients.
const (
	biasWeight     = -7.0
	amountWeight   = 0.6
	velocityWeight = 0.35
	deviceWeight   = 0.5
	foreignWeight  = 1.1
)

// LocalScorer is an in-process logistic model over the transfer features.
type LocalScorer struct{}

func NewLocalScorer() *LocalScorer {
	return &LocalScorer{}
}

func (s *LocalScorer) Score(ctx context.Context, f transfer.Features) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	// a device seen with one sender is normal
	sharedDevice := math.Max(0, f.DeviceIDFreq-1)

	z := biasWeight +
		amountWeight*math.Log1p(math.Max(0, f.Amount)) +
		velocityWeight*f.TxPerHour +
		deviceWeight*sharedDevice +
		foreignWeight*f.IsForeign
	return 1 / (1 + math.Exp(-z)), nil
}
