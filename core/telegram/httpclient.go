package telegram

import (
	"net/http"
	"time"

	"github.com/m3rciful/tempmailbot/core/netutil"
)

// HTTPClientOptions tunes the client used for Bot API calls.
type HTTPClientOptions struct {
	Timeout time.Duration
	// Retries is the number of extra attempts after a transient network
	// failure. Zero selects the default of three.
	Retries int
	Backoff time.Duration
}

func (o HTTPClientOptions) withDefaults(longPoll time.Duration) HTTPClientOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	// getUpdates holds the connection open for the whole poll window.
	if floor := longPoll + 10*time.Second; o.Timeout < floor {
		o.Timeout = floor
	}
	if o.Retries <= 0 {
		o.Retries = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 2 * time.Second
	}
	return o
}

// BuildHTTPClient returns an HTTP client tuned for Telegram API calls.
func BuildHTTPClient(opts HTTPClientOptions) *http.Client {
	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &retryTransport{
			base:       netutil.NewTransport(netutil.TransportOptions{}),
			maxRetries: opts.Retries,
			backoff:    opts.Backoff,
		},
	}
}

// retryTransport repeats requests that failed before a response arrived.
// Requests with a body are only repeated when GetBody can rewind it.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			if req.Body != nil && req.GetBody == nil {
				break
			}
			wait := time.NewTimer(t.backoff * time.Duration(attempt))
			select {
			case <-req.Context().Done():
				wait.Stop()
				return nil, req.Context().Err()
			case <-wait.C:
			}
		}

		next := req
		if attempt > 0 {
			next = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				next.Body = body
			}
		}

		resp, err := base.RoundTrip(next)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !netutil.ShouldRetry(err) {
			break
		}
	}
	return nil, lastErr
}
