package network

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ClientConfig ...
type ClientConfig struct {
	BaseURL    string
	Credential string
	// CompressRequests gzips JSON request bodies. Base64 payloads shrink by
	// roughly a quarter. Only enable when the service accepts
	// Content-Encoding: gzip on the submit endpoints.
	CompressRequests bool
	// HTTPClient sends data-plane requests. Default: DefaultHTTPClient().
	HTTPClient *http.Client
	// ControlClient sends session management requests. Default: a retrying
	// client, since status and abort calls are safe to repeat.
	ControlClient *retryablehttp.Client
}

// DefaultHTTPClient returns a client tuned for long-running transfers: no
// global timeout (a large chunk on a slow link can take minutes), bounded
// connection pools, and proxy support from the environment. Cancellation is
// the caller's job via request contexts.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}
