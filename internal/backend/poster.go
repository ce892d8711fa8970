package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError is returned when a backend answers with a non-2xx status.
type StatusError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Backend, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Backend, e.StatusCode, e.Body)
}

const maxErrorBody = 512

// Poster sends JSON request bodies with a per-call timeout.
type Poster struct {
	client  *http.Client
	timeout time.Duration
}

// NewPoster creates a Poster. A nil client uses http.DefaultClient; a zero
// timeout leaves the deadline to ctx.
func NewPoster(client *http.Client, timeout time.Duration) *Poster {
	if client == nil {
		client = http.DefaultClient
	}
	return &Poster{client: client, timeout: timeout}
}

// PostJSON encodes body and POSTs it to url. header may be nil.
func (p *Poster) PostJSON(ctx context.Context, backend, url string, body any, header http.Header) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode body: %w", backend, err)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", backend, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", backend, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Backend: backend, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
