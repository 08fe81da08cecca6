// Package transport abstracts how price-source requests leave the
// process. Implementations differ only in the delivery path (direct
// call vs. relay through a host-side proxy); the contract and error
// shape are identical so upper layers never branch on the runtime host.
package transport

import (
	"context"
	"net/http"
)

// Response is the uniform result of a transport request. Non-2xx
// statuses are returned as responses, not errors, so callers can apply
// their own policy (e.g. treat 429 as a rate-limit marker).
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Transport performs a single HTTP GET against the upstream source.
// A returned error means the request never produced an HTTP response
// (DNS failure, timeout, connection reset, cancellation).
type Transport interface {
	Request(ctx context.Context, url string) (*Response, error)
}

// Options configures the concrete transports.
type Options struct {
	Timeout        int // seconds, 0 means 30
	RequestsPerSec int // 0 means 2
	ProxyBaseURL   string
}

// Resolve selects the transport implementation for the given options.
// Selection is a pure function of configuration: a relay base URL means
// the host-mediated path, otherwise requests go out directly.
func Resolve(opts Options) Transport {
	if opts.ProxyBaseURL != "" {
		return NewProxy(opts)
	}
	return NewDirect(opts)
}
