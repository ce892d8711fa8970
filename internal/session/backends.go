package session

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gyaneshwarpardhi/trackrelay/internal/backend"
	"github.com/gyaneshwarpardhi/trackrelay/internal/backend/bugsnag"
	"github.com/gyaneshwarpardhi/trackrelay/internal/backend/ga4"
	"github.com/gyaneshwarpardhi/trackrelay/internal/backend/mixpanel"
	"github.com/gyaneshwarpardhi/trackrelay/internal/backend/pixel"
	"github.com/gyaneshwarpardhi/trackrelay/internal/config"
	"github.com/gyaneshwarpardhi/trackrelay/internal/tracking"
)

// BackendFactory builds the analytics clients of one session.
type BackendFactory func(cfg *config.Config, tokens config.Tokens, sessionID string) tracking.Backends

// HTTPBackends returns a factory that creates an HTTP client for every
// backend whose token is configured. All clients share client's transport.
func HTTPBackends(client *http.Client) BackendFactory {
	return func(cfg *config.Config, tokens config.Tokens, sessionID string) tracking.Backends {
		var b tracking.Backends
		bc := cfg.Backends
		if tokens.GA4ID != "" {
			b.Page = ga4.New(bc.GA4.Endpoint, tokens.GA4APISecret, newPoster(client, bc.GA4))
		}
		if tokens.MixpanelToken != "" {
			b.Behavioral = mixpanel.New(bc.Mixpanel.Endpoint, timedClient(client, bc.Mixpanel))
		}
		if tokens.MetaID != "" {
			b.Pixel = pixel.New(bc.Pixel.Endpoint, tokens.MetaAccessToken, sessionID, newPoster(client, bc.Pixel))
		}
		if tokens.BugsnagAPIKey != "" {
			b.Errors = bugsnag.New(bc.Bugsnag.Endpoint, deadlineTransport(client.Transport, bc.Bugsnag))
		}
		return b
	}
}

func newPoster(client *http.Client, c config.BackendConf) *backend.Poster {
	return backend.NewPoster(client, time.Duration(c.TimeoutMs)*time.Millisecond)
}

// timedClient shares client's transport with a per-backend timeout.
func timedClient(client *http.Client, c config.BackendConf) *http.Client {
	return &http.Client{
		Transport: client.Transport,
		Timeout:   time.Duration(c.TimeoutMs) * time.Millisecond,
	}
}

// deadlineTransport bounds every round trip by the backend timeout, for SDKs
// that only accept a transport.
func deadlineTransport(next http.RoundTripper, c config.BackendConf) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if c.TimeoutMs <= 0 {
		return next
	}
	return &timeoutTransport{next: next, timeout: time.Duration(c.TimeoutMs) * time.Millisecond}
}

type timeoutTransport struct {
	next    http.RoundTripper
	timeout time.Duration
}

func (t *timeoutTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	resp, err := t.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelBody releases the round trip's context once the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
