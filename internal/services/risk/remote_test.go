package risk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrust/internal/domain/transfer"
)

func TestRemoteScorer(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    float64
		wantErr bool
	}{
		{name: "single score", status: http.StatusOK, body: `{"fraud_scores":[0.42]}`, want: 0.42},
		{name: "server error", status: http.StatusInternalServerError, body: `{}`, wantErr: true},
		{name: "malformed body", status: http.StatusOK, body: `not json`, wantErr: true},
		{name: "missing scores", status: http.StatusOK, body: `{"fraud_scores":[]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req scoreRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				require.Len(t, req.Transactions, 1)
				assert.Equal(t, 250.0, req.Transactions[0].Amount)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			s := NewRemoteScorer(srv.URL, time.Second)
			got, err := s.Score(context.Background(), transfer.Features{Amount: 250})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrScorerUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
