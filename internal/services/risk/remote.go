package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"fintrust/internal/domain/transfer"
	"fintrust/internal/utils/httpclient"
)

var ErrScorerUnavailable = errors.New("remote scorer unavailable")

type scoreRequest struct {
	Transactions []transfer.Features `json:"transactions"`
}

type scoreResponse struct {
	FraudScores []float64 `json:"fraud_scores"`
}

// RemoteScorer calls a model endpoint that takes a batch of feature rows and
// returns one score per row.
type RemoteScorer struct {
	url  string
	http *http.Client
}

func NewRemoteScorer(url string, timeout time.Duration) *RemoteScorer {
	if url == "" {
		panic("scorer URL is required")
	}
	return &RemoteScorer{
		url:  url,
		http: httpclient.New(httpclient.WithTimeout(timeout), httpclient.WithResponseHeaderTimeout(timeout)),
	}
}

func (s *RemoteScorer) Score(ctx context.Context, f transfer.Features) (float64, error) {
	payload, err := json.Marshal(scoreRequest{Transactions: []transfer.Features{f}})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrScorerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("%w: status %d", ErrScorerUnavailable, resp.StatusCode)
	}

	var out scoreResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: malformed response: %v", ErrScorerUnavailable, err)
	}
	if len(out.FraudScores) != 1 {
		return 0, fmt.Errorf("%w: expected 1 score, got %d", ErrScorerUnavailable, len(out.FraudScores))
	}
	return out.FraudScores[0], nil
}
