// Package mixpanel sends behavioral analytics to Mixpanel through the
// official Go SDK.
package mixpanel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	mp "github.com/mixpanel/mixpanel-go"

	"github.com/gyaneshwarpardhi/trackrelay/internal/backend"
	"github.com/gyaneshwarpardhi/trackrelay/internal/event"
)

// Client is one browser session's Mixpanel identity and event stream.
type Client struct {
	endpoint string
	http     *http.Client
	now      func() time.Time

	mu         sync.Mutex
	api        *mp.ApiClient
	token      string
	debug      bool
	distinctID string
}

// New creates a client sending to endpoint (e.g. https://api.mixpanel.com).
func New(endpoint string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     client,
		now:      time.Now,
	}
}

// Init binds the project token and starts an anonymous identity.
func (c *Client) Init(ctx context.Context, token string, opts backend.BehavioralOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.api = mp.NewApiClient(token,
		mp.HttpClient(c.http),
		mp.ProxyApiLocation(c.endpoint),
	)
	c.token = token
	c.debug = opts.Debug
	if c.distinctID == "" {
		c.distinctID = anonymousID()
	}
	return nil
}

// Identify switches the distinct id to a known user.
func (c *Client) Identify(ctx context.Context, distinctID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == nil {
		return backend.ErrNotInitialized
	}
	c.distinctID = distinctID
	c.logDebug("identify", "distinct_id", distinctID)
	return nil
}

// SetOnce records profile properties that are only written if absent.
func (c *Client) SetOnce(ctx context.Context, props event.Attributes) error {
	c.mu.Lock()
	api, id := c.api, c.distinctID
	c.mu.Unlock()
	if api == nil {
		return backend.ErrNotInitialized
	}
	c.logDebug("set_once", "props", props)

	people := []*mp.PeopleProperties{mp.NewPeopleProperties(id, map[string]any(props))}
	if err := api.PeopleSetOnce(ctx, people); err != nil {
		return fmt.Errorf("mixpanel set_once: %w", err)
	}
	return nil
}

// Track sends one event with the session's current distinct id.
func (c *Client) Track(ctx context.Context, action string, attrs event.Attributes) error {
	c.mu.Lock()
	api, id, token := c.api, c.distinctID, c.token
	c.mu.Unlock()
	if api == nil {
		return backend.ErrNotInitialized
	}

	props := make(map[string]any, len(attrs)+4)
	for k, v := range attrs {
		props[k] = v
	}
	props["token"] = token
	props["distinct_id"] = id
	props["time"] = c.now().UnixMilli()
	props["$insert_id"] = uuid.NewString()
	c.logDebug("track", "event", action)

	if err := api.Track(ctx, []*mp.Event{api.NewEvent(action, id, props)}); err != nil {
		return fmt.Errorf("mixpanel track %q: %w", action, err)
	}
	return nil
}

func (c *Client) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == nil {
		return backend.ErrNotInitialized
	}
	c.distinctID = anonymousID()
	c.logDebug("reset")
	return nil
}

// DistinctID returns the id sent with events.
func (c *Client) DistinctID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.distinctID
}

func (c *Client) logDebug(msg string, args ...any) {
	if c.debug {
		slog.Debug("mixpanel "+msg, args...)
	}
}

func anonymousID() string {
	return "$device:" + uuid.NewString()
}
