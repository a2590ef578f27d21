package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGateway(t *testing.T, h http.HandlerFunc) *GatewayClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewGatewayClient(GatewayConfig{BaseURL: srv.URL, Timeout: 500 * time.Millisecond, RPS: 1000}, nil)
}

func TestGatewayClient_TransferSendsArgs(t *testing.T) {
	var got gatewayRequest
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoke/Transfer", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"result":{"tx_id":"fabric-1"}}`))
	})

	ref, err := c.Transfer(context.Background(), "A", "B", decimal.RequireFromString("7000"), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "fabric-1", ref)
	assert.Equal(t, []string{"A", "B", "7000", "tx-1"}, got.Args)
}

func TestGatewayClient_TransferErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"insufficient balance"}`))
			},
			want: ErrRejected,
		},
		{
			name: "unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			want: ErrUnavailable,
		},
		{
			name: "gateway timeout is unknown",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusGatewayTimeout)
			},
			want: ErrOutcomeUnknown,
		},
		{
			name: "slow ledger is unknown",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(time.Second)
			},
			want: ErrOutcomeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newGateway(t, tt.handler)
			_, err := c.Transfer(context.Background(), "A", "B", decimal.NewFromInt(1), "tx")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGatewayClient_TransferNotRetried(t *testing.T) {
	var calls int32
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Transfer(context.Background(), "A", "B", decimal.NewFromInt(1), "tx")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGatewayClient_QueryRetriesTransientFailures(t *testing.T) {
	var calls int32
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "/query/QueryBalance", r.URL.Path)
		w.Write([]byte(`{"result":"1500.25"}`))
	})

	bal, err := c.QueryBalance(context.Background(), "BankA")
	require.NoError(t, err)
	assert.Equal(t, "1500.25", bal.String())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGatewayClient_QueryNotFound(t *testing.T) {
	var calls int32
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.QueryAccount(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGatewayClient_QueryHistory(t *testing.T) {
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":[{"tx_id":"f1","reference":"tx-1","sender":"A","receiver":"B","amount":100,"timestamp":"2024-01-01T00:00:00Z"}]}`))
	})

	hist, err := c.QueryHistory(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	e, ok := FindReference(hist, "tx-1")
	assert.True(t, ok)
	assert.Equal(t, "100", e.Amount.String())
}
