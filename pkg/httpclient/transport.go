// Package httpclient builds the pooled transport shared by the search
// engine clients.
package httpclient

import (
	"net"
	"net/http"
	"net/url"
	"time"
)

// Config holds connection pool settings.
type Config struct {
	MaxConnsPerHost     int
	DialTimeout         time.Duration
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
}

// DefaultConfig returns the gateway's default pool settings.
func DefaultConfig() Config {
	return Config{
		MaxConnsPerHost:     50,
		DialTimeout:         5 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// NewTransport returns a keep-alive connection pool. It performs no retries;
// callers own retry and breaker policy.
func NewTransport(cfg Config) *http.Transport {
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = DefaultConfig().MaxConnsPerHost
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxConnsPerHost * 2,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Redact strips userinfo from rawURL so it can be logged.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
