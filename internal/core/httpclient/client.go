// Package httpclient configures the HTTP client used to call upstream services.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

const DefaultUserAgent = "city-indicators-api"

type userAgent struct {
	next http.RoundTripper
	ua   string
}

func (t *userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("User-Agent") == "" {
		r = r.Clone(r.Context())
		r.Header.Set("User-Agent", t.ua)
	}
	return t.next.RoundTrip(r)
}

// NewOutbound creates the client shared by the upstream gateways. A zero
// timeout means 30s; an empty ua means DefaultUserAgent.
func NewOutbound(timeout time.Duration, ua string) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if ua == "" {
		ua = DefaultUserAgent
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: &userAgent{next: transport, ua: ua},
		Timeout:   timeout,
	}
}
