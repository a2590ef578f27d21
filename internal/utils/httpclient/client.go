// Package httpclient builds pooled HTTP clients with bounded timeouts for
// calls to external collaborators.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultClientTimeout         = 5 * time.Second
	defaultResponseHeaderTimeout = 3 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultTLSHandshakeTimeout   = 5 * time.Second
	defaultMaxIdleConnsPerHost   = 64
	defaultDialerTimeout         = time.Second
	defaultDialerKeepAlive       = 30 * time.Second
)

// Config holds the client tunables. Zero values fall back to defaults.
type Config struct {
	Timeout               time.Duration
	ResponseHeaderTimeout time.Duration
	MaxIdleConnsPerHost   int
	DialerTimeout         time.Duration
}

type Option func(*Config)

func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

func WithResponseHeaderTimeout(d time.Duration) Option {
	return func(c *Config) { c.ResponseHeaderTimeout = d }
}

func WithMaxIdleConnsPerHost(n int) Option {
	return func(c *Config) { c.MaxIdleConnsPerHost = n }
}

func WithDialerTimeout(d time.Duration) Option {
	return func(c *Config) { c.DialerTimeout = d }
}

// New returns an *http.Client with a tuned transport.
func New(opts ...Option) *http.Client {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultClientTimeout
	}
	if cfg.ResponseHeaderTimeout <= 0 {
		cfg.ResponseHeaderTimeout = defaultResponseHeaderTimeout
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = defaultMaxIdleConnsPerHost
	}
	if cfg.DialerTimeout <= 0 {
		cfg.DialerTimeout = defaultDialerTimeout
	}

	dialer := &net.Dialer{Timeout: cfg.DialerTimeout, KeepAlive: defaultDialerKeepAlive}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConnsPerHost * 2,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Timeout: cfg.Timeout, Transport: transport}
}
