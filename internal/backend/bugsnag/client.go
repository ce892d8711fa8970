// Package bugsnag delivers error reports to Bugsnag through the official Go
// notifier. Every session gets its own notifier; the package-level Bugsnag
// configuration is never touched.
package bugsnag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	bsg "github.com/bugsnag/bugsnag-go/v2"

	"github.com/gyaneshwarpardhi/trackrelay/internal/backend"
)

const metadataTab = "custom"

// Client is one browser session's error reporter.
type Client struct {
	endpoint  string
	transport http.RoundTripper

	mu       sync.Mutex
	notifier *bsg.Notifier
	onError  func(*backend.Report)
}

// New creates a client notifying endpoint (e.g. https://notify.bugsnag.com).
// A nil transport uses http.DefaultTransport.
func New(endpoint string, transport http.RoundTripper) *Client {
	return &Client{
		endpoint:  strings.TrimRight(endpoint, "/"),
		transport: transport,
	}
}

// Start builds the session's notifier. Only the first call has effect.
func (c *Client) Start(ctx context.Context, cfg backend.ErrorReporting) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notifier != nil {
		return nil
	}
	if cfg.APIKey == "" {
		return errors.New("bugsnag: api key is required")
	}
	if cfg.ReleaseStage == "" {
		cfg.ReleaseStage = "unknown"
	}
	conf := bsg.Configuration{
		APIKey:       cfg.APIKey,
		AppVersion:   cfg.AppVersion,
		ReleaseStage: cfg.ReleaseStage,
		Endpoints: bsg.Endpoints{
			Notify:   c.endpoint,
			Sessions: c.endpoint,
		},
		AutoCaptureSessions: false,
		Synchronous:         true,
		ProjectPackages:     []string{"github.com/gyaneshwarpardhi/trackrelay/*"},
		Logger:              slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug),
	}
	if c.transport != nil {
		conf.Transport = c.transport
	}
	c.notifier = bsg.New(conf)
	c.onError = cfg.OnError
	return nil
}

// Notify reports err. The OnError hook runs first; a panicking hook is logged
// and the report is sent without its changes.
func (c *Client) Notify(ctx context.Context, err error, metadata map[string]any) error {
	c.mu.Lock()
	notifier, hook := c.notifier, c.onError
	c.mu.Unlock()
	if notifier == nil {
		return backend.ErrNotInitialized
	}

	r := &backend.Report{
		ErrorClass: errorClass(err),
		Message:    err.Error(),
		Severity:   "error",
		Metadata:   metadata,
	}
	if hook != nil {
		r = runHook(hook, r)
	}

	raw := []any{ctx, bsg.ErrorClass{Name: r.ErrorClass}, severity(r.Severity)}
	if r.UserID != "" {
		raw = append(raw, bsg.User{Id: r.UserID})
	}
	if len(r.Metadata) > 0 {
		md := bsg.MetaData{}
		for k, v := range r.Metadata {
			md.Add(metadataTab, k, v)
		}
		raw = append(raw, md)
	}

	report := err
	if r.Message != err.Error() {
		report = errors.New(r.Message)
	}
	if nerr := notifier.Notify(report, raw...); nerr != nil {
		return fmt.Errorf("bugsnag notify: %w", nerr)
	}
	return nil
}

func severity(s string) any {
	switch s {
	case "info":
		return bsg.SeverityInfo
	case "warning":
		return bsg.SeverityWarning
	}
	return bsg.SeverityError
}

// runHook applies hook to a copy of r so a panic mid-mutation leaves r intact.
func runHook(hook func(*backend.Report), r *backend.Report) (out *backend.Report) {
	cp := *r
	out = r
	defer func() {
		if p := recover(); p != nil {
			slog.Warn("bugsnag OnError hook panicked", "panic", p)
			out = r
		}
	}()
	hook(&cp)
	return &cp
}

// ClassError lets callers choose the reported error class.
type ClassError struct {
	Class string
	Err   error
}

func (e *ClassError) Error() string { return e.Err.Error() }
func (e *ClassError) Unwrap() error { return e.Err }

func errorClass(err error) string {
	var ce *ClassError
	if errors.As(err, &ce) && ce.Class != "" {
		return ce.Class
	}
	return fmt.Sprintf("%T", err)
}
