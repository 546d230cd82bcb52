// Package httpclient builds the pooled HTTP client shared by the Discogs
// client and the image importer.
package httpclient

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Discogs serves small JSON payloads and modest JPEGs; a shared 30s budget
// covers both. Pool sizing is fixed: the service talks to one upstream host.
const (
	defaultTimeout      = 30 * time.Second
	maxIdleConns        = 20
	idleConnTimeout     = 90 * time.Second
	dialTimeout         = 10 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
)

// ClientConfig holds the tunable timeouts.
type ClientConfig struct {
	// Timeout bounds the whole request, body read included.
	Timeout time.Duration

	// ResponseHeaderTimeout bounds the wait for the server's headers.
	ResponseHeaderTimeout time.Duration
}

// DefaultConfig returns the stock timeouts, overridable via environment
// variables (plain integers are seconds, Go duration strings also work):
//   - HTTP_TIMEOUT: overall request timeout (default: 30)
//   - HTTP_RESPONSE_HEADER_TIMEOUT: wait for response headers (default: 30)
func DefaultConfig() ClientConfig {
	return ClientConfig{
		Timeout:               getEnvDuration("HTTP_TIMEOUT", defaultTimeout),
		ResponseHeaderTimeout: getEnvDuration("HTTP_RESPONSE_HEADER_TIMEOUT", defaultTimeout),
	}
}

// NewHTTPClient creates an HTTP client with the provided configuration.
// If config is nil, DefaultConfig() is used.
func NewHTTPClient(config *ClientConfig) *http.Client {
	if config == nil {
		cfg := DefaultConfig()
		config = &cfg
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   maxIdleConns,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
	}
}

// NewDefaultHTTPClient is shorthand for NewHTTPClient(nil).
func NewDefaultHTTPClient() *http.Client {
	return NewHTTPClient(nil)
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	return defaultVal
}
