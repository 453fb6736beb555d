package upstream

import (
	"net"
	"net/http"
	"time"
)

// newHTTPClient builds the shared HTTP client for all upstream calls.
// The client itself carries no overall timeout: the buffered path bounds the
// whole call with a per-request context, and the streaming path is bounded by
// the caller's stream-duration context. Connection setup is bounded here.
func newHTTPClient(connectTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: connectTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{Transport: transport}
}
