package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"fintrust/internal/utils/httpclient"
)

var (
	ErrNoUsableKeys = errors.New("no usable RSA keys in JWKS")
	ErrUnknownKey   = errors.New("signing key not found")
)

// minRefreshInterval bounds refreshes triggered by unknown key ids.
const minRefreshInterval = time.Minute

// KeySet caches the RSA verification keys published at a JWKS endpoint.
type KeySet struct {
	url    string
	client *http.Client
	log    *zap.Logger

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	lastRefresh time.Time
	now         func() time.Time

	cron *cron.Cron
}

func NewKeySet(url string, log *zap.Logger) *KeySet {
	if log == nil {
		log = zap.NewNop()
	}
	return &KeySet{
		url:    strings.TrimSpace(url),
		client: httpclient.New(httpclient.WithTimeout(5 * time.Second)),
		log:    log,
		keys:   map[string]*rsa.PublicKey{},
		now:    time.Now,
	}
}

// Load fetches the keyset, retrying with exponential backoff until maxWait
// has elapsed.
func (k *KeySet) Load(ctx context.Context, maxWait time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxWait

	return backoff.RetryNotify(func() error {
		err := k.Refresh(ctx)
		if errors.Is(err, ErrNoUsableKeys) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		k.log.Warn("jwks fetch failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
}

// Refresh replaces the cached keys with the current JWKS document.
func (k *KeySet) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return err
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := map[string]*rsa.PublicKey{}
	for _, key := range payload.Keys {
		if key.Kid == "" || key.Kty != "RSA" || (key.Use != "" && key.Use != "sig") {
			continue
		}
		pub, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			k.log.Warn("skipping malformed jwk", zap.String("kid", key.Kid), zap.Error(err))
			continue
		}
		keys[key.Kid] = pub
	}
	if len(keys) == 0 {
		return ErrNoUsableKeys
	}

	k.mu.Lock()
	k.keys = keys
	k.lastRefresh = k.now()
	k.mu.Unlock()

	k.log.Debug("jwks refreshed", zap.Int("keys", len(keys)))
	return nil
}

// Key returns the key for kid. An unknown kid triggers a refresh, at most
// once per minRefreshInterval.
func (k *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key := k.cached(kid); key != nil {
		return key, nil
	}

	k.mu.RLock()
	recent := k.now().Sub(k.lastRefresh) < minRefreshInterval
	k.mu.RUnlock()
	if !recent {
		if err := k.Refresh(ctx); err != nil {
			return nil, err
		}
		if key := k.cached(kid); key != nil {
			return key, nil
		}
	}
	return nil, fmt.Errorf("%w: kid %s", ErrUnknownKey, kid)
}

func (k *KeySet) cached(kid string) *rsa.PublicKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.keys[kid]
}

// StartRefresh schedules periodic refreshes using a cron spec such as
// "@every 1h".
func (k *KeySet) StartRefresh(spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := k.Refresh(ctx); err != nil {
			k.log.Warn("scheduled jwks refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	c.Start()
	k.cron = c
	return nil
}

// Stop halts scheduled refreshes.
func (k *KeySet) Stop() {
	if k.cron != nil {
		<-k.cron.Stop().Done()
	}
}

func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}
	if exp == 0 || len(nb) == 0 {
		return nil, errors.New("invalid key parameters")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(exp),
	}, nil
}
