package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Proxy relays requests through a host-side HTTP proxy that performs
// the upstream call on our behalf. Used where the process cannot reach
// the price source directly. The relay receives the target URL as a
// query parameter and streams back status and body unchanged, so the
// contract upper layers see is identical to Direct.
type Proxy struct {
	base   string
	direct *Direct
	logger zerolog.Logger
}

// NewProxy creates a relay transport targeting opts.ProxyBaseURL.
func NewProxy(opts Options) *Proxy {
	return &Proxy{
		base:   strings.TrimRight(opts.ProxyBaseURL, "/"),
		direct: NewDirect(opts),
		logger: log.With().Str("component", "proxy_transport").Logger(),
	}
}

// Request forwards the target URL through the relay.
func (p *Proxy) Request(ctx context.Context, target string) (*Response, error) {
	relayed := fmt.Sprintf("%s?url=%s", p.base, url.QueryEscape(target))
	p.logger.Debug().Str("target", target).Msg("relaying request")

	resp, err := p.direct.Request(ctx, relayed)
	if err != nil {
		return nil, fmt.Errorf("proxy relay: %w", err)
	}
	return resp, nil
}
