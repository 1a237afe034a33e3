// Package httpc builds HTTP clients with connection-level timeouts set.
// Use this instead of http.DefaultClient, which never times out a dial.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// Connection timeouts. Request duration is bounded by the caller's context
// or the client timeout.
const (
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	DefaultTLSTimeout      = 10 * time.Second

	// MaxIdleConnsPerHost covers the parallel part uploads of one object.
	MaxIdleConnsPerHost = 16
)

// New creates a client. A zero timeout leaves whole-request duration to
// the request context, which suits large uploads.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(),
	}
}

// NewTransport returns a transport with dial, TLS and idle timeouts.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DefaultConnectTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   MaxIdleConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   DefaultTLSTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
