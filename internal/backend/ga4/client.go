// Package ga4 sends page analytics to Google Analytics 4 through the
// Measurement Protocol.
package ga4

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/trackrelay/internal/backend"
	"github.com/gyaneshwarpardhi/trackrelay/internal/event"
)

// Client is one browser session's GA4 stream.
type Client struct {
	endpoint  string
	apiSecret string
	poster    *backend.Poster

	mu            sync.Mutex
	measurementID string
	clientID      string
	userProps     backend.UserProperties
	propsSet      bool
	configured    bool
}

// New creates a client posting to endpoint (e.g. https://www.google-analytics.com).
func New(endpoint, apiSecret string, poster *backend.Poster) *Client {
	return &Client{
		endpoint:  strings.TrimRight(endpoint, "/"),
		apiSecret: apiSecret,
		poster:    poster,
		clientID:  uuid.NewString(),
	}
}

type payload struct {
	ClientID       string                   `json:"client_id"`
	UserID         string                   `json:"user_id,omitempty"`
	UserProperties map[string]propertyValue `json:"user_properties,omitempty"`
	Events         []mpEvent                `json:"events"`
}

type propertyValue struct {
	Value string `json:"value"`
}

type mpEvent struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// Configure binds the client to a measurement id. With SendPageView it also
// fires a page_view for the configured page.
func (c *Client) Configure(ctx context.Context, measurementID string, cfg backend.PageConfig) error {
	c.mu.Lock()
	c.measurementID = measurementID
	c.configured = true
	c.mu.Unlock()

	if !cfg.SendPageView {
		return nil
	}
	return c.Event(ctx, event.ActionPageView, event.Attributes{
		event.KeyPagePath:     cfg.PagePath,
		event.KeyPageLocation: cfg.PageLocation,
	})
}

// SetUserProperties sets the identity sent with every later event. Empty
// values clear it. Cleared properties are still sent, as empty values, and
// clearing a known identity starts a new client id.
func (c *Client) SetUserProperties(ctx context.Context, props backend.UserProperties) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.configured {
		return backend.ErrNotInitialized
	}
	if empty(props) && !empty(c.userProps) {
		c.clientID = uuid.NewString()
	}
	c.userProps = props
	c.propsSet = true
	return nil
}

// Event sends a generic event. Category, label, value and page path are always
// sent as named params, even when empty.
func (c *Client) Event(ctx context.Context, action string, attrs event.Attributes) error {
	c.mu.Lock()
	if !c.configured {
		c.mu.Unlock()
		return backend.ErrNotInitialized
	}
	p := payload{
		ClientID: c.clientID,
		UserID:   c.userProps.UserID,
		Events:   []mpEvent{{Name: action, Params: eventParams(attrs)}},
	}
	if c.propsSet {
		p.UserProperties = map[string]propertyValue{
			"user_id": {Value: c.userProps.UserID},
			"pubkey":  {Value: c.userProps.Pubkey},
		}
	}
	target := c.collectURL()
	c.mu.Unlock()

	return c.poster.PostJSON(ctx, backend.NameGA4, target, p, nil)
}

func empty(p backend.UserProperties) bool {
	return p.UserID == "" && p.Pubkey == ""
}

func eventParams(attrs event.Attributes) map[string]any {
	params := make(map[string]any, len(attrs)+4)
	for k, v := range attrs {
		params[k] = v
	}
	for _, k := range []string{event.KeyCategory, event.KeyLabel, event.KeyValue, event.KeyPagePath} {
		if _, ok := params[k]; !ok {
			params[k] = nil
		}
	}
	return params
}

func (c *Client) collectURL() string {
	q := url.Values{}
	q.Set("measurement_id", c.measurementID)
	q.Set("api_secret", c.apiSecret)
	return c.endpoint + "/mp/collect?" + q.Encode()
}
