package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fintrust/internal/utils/httpclient"
)

// GatewayConfig configures the HTTP ledger gateway client.
type GatewayConfig struct {
	BaseURL      string
	Timeout      time.Duration
	RPS          float64
	QueryRetries uint64
}

// GatewayClient talks to a ledger gateway that exposes chaincode functions
// as POST /invoke/{fn} (submit) and POST /query/{fn} (evaluate).
type GatewayClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retries uint64
	log     *zap.Logger
}

type gatewayRequest struct {
	Args []string `json:"args"`
}

type gatewayResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

func NewGatewayClient(cfg GatewayConfig, log *zap.Logger) *GatewayClient {
	if cfg.BaseURL == "" {
		panic("ledger base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 20
	}
	if cfg.QueryRetries == 0 {
		cfg.QueryRetries = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GatewayClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: httpclient.New(
			httpclient.WithTimeout(cfg.Timeout),
			httpclient.WithResponseHeaderTimeout(cfg.Timeout),
		),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), int(cfg.RPS)+1),
		retries: cfg.QueryRetries,
		log:     log,
	}
}

// Transfer invokes the gateway's four-argument Transfer. reference must come
// back on the matching history entry for reconciliation to find it.
func (c *GatewayClient) Transfer(ctx context.Context, sender, receiver string, amount decimal.Decimal, reference string) (string, error) {
	var out struct {
		TxID string `json:"tx_id"`
	}
	if err := c.invoke(ctx, "Transfer", []string{sender, receiver, amount.String(), reference}, &out); err != nil {
		return "", err
	}
	if out.TxID == "" {
		return reference, nil
	}
	return out.TxID, nil
}

func (c *GatewayClient) InitLedger(ctx context.Context) error {
	return c.invoke(ctx, "InitLedger", []string{}, nil)
}

func (c *GatewayClient) QueryBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	if err := c.query(ctx, "QueryBalance", account, &bal); err != nil {
		return decimal.Zero, err
	}
	return bal, nil
}

func (c *GatewayClient) QueryHistory(ctx context.Context, account string) ([]Entry, error) {
	var entries []Entry
	if err := c.query(ctx, "QueryHistory", account, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func (c *GatewayClient) QueryAccount(ctx context.Context, account string) (*Account, error) {
	var acc Account
	if err := c.query(ctx, "QueryAccount", account, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// invoke submits a state-changing transaction. It is never retried: once the
// request may have left the process, failures are reported as unknown.
func (c *GatewayClient) invoke(ctx context.Context, fn string, args []string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	status, body, err := c.post(ctx, "/invoke/"+fn, args)
	if err != nil {
		if isDialError(err) {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, fn, err)
		}
		c.log.Warn("ledger invoke outcome unknown", zap.String("fn", fn), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", ErrOutcomeUnknown, fn, err)
	}
	switch {
	case status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s: gateway timeout", ErrOutcomeUnknown, fn)
	case status >= 500:
		return fmt.Errorf("%w: %s: status %d: %s", ErrUnavailable, fn, status, errorText(body))
	case status >= 400:
		return fmt.Errorf("%w: %s: %s", ErrRejected, fn, errorText(body))
	}
	if err := decodeResult(body, out); err != nil {
		// committed, but the reply is unreadable
		return fmt.Errorf("%w: %s: %v", ErrOutcomeUnknown, fn, err)
	}
	return nil
}

// query evaluates a read-only function, retrying transient failures.
func (c *GatewayClient) query(ctx context.Context, fn, account string, out interface{}) error {
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
		status, body, err := c.post(ctx, "/query/"+fn, []string{account})
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, fn, err)
		}
		switch {
		case status == http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, account))
		case status >= 500:
			return fmt.Errorf("%w: %s: status %d", ErrUnavailable, fn, status)
		case status >= 400:
			text := errorText(body)
			if strings.Contains(text, "not found") {
				return backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, account))
			}
			return backoff.Permanent(fmt.Errorf("%w: %s: %s", ErrRejected, fn, text))
		}
		if err := decodeResult(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %s: malformed result: %v", ErrUnavailable, fn, err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)

	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		c.log.Debug("retrying ledger query", zap.String("fn", fn), zap.Duration("wait", wait), zap.Error(err))
	})
}

func (c *GatewayClient) post(ctx context.Context, path string, args []string) (int, []byte, error) {
	payload, err := json.Marshal(gatewayRequest{Args: args})
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func decodeResult(body []byte, out interface{}) error {
	if out == nil {
		return nil
	}
	var env gatewayResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

func errorText(body []byte) string {
	var env gatewayResponse
	if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
		return env.Error
	}
	return strings.TrimSpace(string(body))
}

// isDialError reports whether the request failed before any byte was sent.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
