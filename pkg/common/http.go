package common

import (
	_ "embed"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

// BrowserUserAgent is sent to portals that refuse requests from clients that
// do not look like a browser.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/111.0.0.0 Safari/537.36"

type headerTransport struct {
	transport http.RoundTripper
	headers   http.Header
}

// RoundTrip implements the http.RoundTripper interface. Headers already set on
// the request win over the defaults.
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original request's headers
	// which might be shared or reused
	req = req.Clone(req.Context())
	for name, values := range t.headers {
		if req.Header.Get(name) != "" {
			continue
		}
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	return t.transport.RoundTrip(req)
}

// Version returns the embedded release version.
func Version() string {
	return strings.TrimSpace(version)
}

// HTTPClient returns a http client that sends the browser user-agent and the
// given extra headers on every request.
func HTTPClient(timeout time.Duration, headers map[string]string) *http.Client {
	h := http.Header{}
	h.Set("User-Agent", BrowserUserAgent)
	for name, v := range headers {
		if v == "" {
			continue
		}
		h.Set(name, v)
	}

	return &http.Client{
		Transport: &headerTransport{
			transport: http.DefaultTransport,
			headers:   h,
		},
		Timeout: timeout,
	}
}
