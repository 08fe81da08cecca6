package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const userAgent = "Mozilla/5.0 (compatible; stocksignal/1.0)"

// Direct issues requests straight to the upstream host, with rate
// limiting and bounded retries for transient failures.
type Direct struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewDirect creates a direct transport.
func NewDirect(opts Options) *Direct {
	if opts.Timeout == 0 {
		opts.Timeout = 30
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 2
	}
	return &Direct{
		httpClient: &http.Client{
			Timeout: time.Duration(opts.Timeout) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), opts.RequestsPerSec),
		logger:  log.With().Str("component", "transport").Logger(),
	}
}

// Request performs a GET with rate limiting. Network errors and 5xx
// responses are retried with exponential backoff; 4xx responses
// (including 429) are returned as-is so the caller decides policy.
func (d *Direct) Request(ctx context.Context, url string) (*Response, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var out *Response
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := d.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("HTTP request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("upstream status %d", resp.StatusCode)
		}

		out = &Response{
			Status: resp.StatusCode,
			Header: resp.Header,
			Body:   body,
		}
		return nil
	}

	backoffStrategy := backoff.NewExponentialBackOff()
	backoffStrategy.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(backoffStrategy, ctx)); err != nil {
		d.logger.Debug().Err(err).Str("url", url).Msg("request gave up")
		return nil, err
	}

	return out, nil
}
