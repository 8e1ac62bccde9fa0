// Package upstream builds the shared HTTP client used to talk to the
// index servers and file hosts this proxy fronts.
package upstream

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Config controls how the shared client reaches upstream servers.
type Config struct {
	// ConnectTimeout bounds TCP+TLS handshake time per dial.
	ConnectTimeout time.Duration
	// ReadTimeout bounds the overall request/response round trip.
	ReadTimeout time.Duration
	// DisableTLSVerification skips certificate validation; only ever set
	// for talking to a trusted internal mirror.
	DisableTLSVerification bool
	// MaxIdleConns and MaxIdleConnsPerHost tune the shared transport's pool.
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	// UserAgent is sent on every outbound request.
	UserAgent string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout:      10 * time.Second,
		ReadTimeout:         30 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		UserAgent:           "pypi-cache-proxy",
	}
}

// Client wraps an *http.Client tuned for fetching index pages and package
// files from upstream, tagging every outbound request with a fixed
// User-Agent and capping redirect chains.
type Client struct {
	http      *http.Client
	userAgent string
}

// New validates cfg and builds a Client around it.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid upstream configuration: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	if cfg.DisableTLSVerification {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.ReadTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			return nil
		},
	}

	return &Client{http: httpClient, userAgent: cfg.UserAgent}, nil
}

func validateConfig(cfg *Config) error {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 10
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "pypi-cache-proxy"
	}
	return nil
}

// Do executes req, stamping it with the client's User-Agent unless the
// caller already set one.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.http.Do(req)
}

// HTTPClient returns the underlying *http.Client, for callers (like
// net/http/httputil, or io.Copy-based streaming handlers) that need it
// directly.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Close releases idle connections held by the client's transport.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
