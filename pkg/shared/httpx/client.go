// Package httpx provides shared *http.Client construction for the
// outbound HTTP calls this module makes: Slack webhook delivery,
// Prometheus scraping (dashboard), and LLM provider calls that don't go
// through their own SDK transport.
package httpx

import (
	"crypto/tls"
	"net/http"
	"time"
)

// ClientConfig controls the transport tuning of a constructed *http.Client.
// MaxRetries is carried for callers that build their own retry loop via
// retryx.Do; the client itself does not retry.
type ClientConfig struct {
	Timeout                time.Duration
	MaxRetries             int
	DisableSSLVerification bool
	MaxIdleConns           int
	IdleConnTimeout        time.Duration
	TLSHandshakeTimeout    time.Duration
	ResponseHeaderTimeout  time.Duration
}

// DefaultClientConfig is the baseline used for general-purpose outbound
// calls with no stricter latency requirement.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:               30 * time.Second,
		MaxRetries:            3,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
}

// SlackClientConfig tunes for webhook delivery: short timeout since the
// dedup window and rate-limit backoff in the notifier already bound how
// long a single call should be allowed to hang.
func SlackClientConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.Timeout = 10 * time.Second
	cfg.MaxRetries = 2
	cfg.ResponseHeaderTimeout = 5 * time.Second
	return cfg
}

// PrometheusClientConfig tunes for dashboard metric scraping at the given
// overall timeout, allotting half of it to waiting on response headers.
func PrometheusClientConfig(timeout time.Duration) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.Timeout = timeout
	cfg.ResponseHeaderTimeout = timeout / 2
	return cfg
}

// LLMClientConfig tunes for AI backend calls at the given overall
// timeout, allotting a third of it to waiting on response headers since
// model inference latency dominates the remainder.
func LLMClientConfig(timeout time.Duration) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.Timeout = timeout
	cfg.ResponseHeaderTimeout = timeout / 3
	return cfg
}

// NewClient builds an *http.Client from config.
func NewClient(config ClientConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          config.MaxIdleConns,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
	}
	if config.DisableSSLVerification {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}
}

// NewClientWithTimeout builds a client from DefaultClientConfig with only
// the timeout overridden.
func NewClientWithTimeout(timeout time.Duration) *http.Client {
	cfg := DefaultClientConfig()
	cfg.Timeout = timeout
	return NewClient(cfg)
}

// NewDefaultClient builds a client from DefaultClientConfig.
func NewDefaultClient() *http.Client {
	return NewClient(DefaultClientConfig())
}
