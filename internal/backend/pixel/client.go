// Package pixel sends social-ads conversion events to the Meta Conversions API.
package pixel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/trackrelay/internal/backend"
	"github.com/gyaneshwarpardhi/trackrelay/internal/event"
)

// EventPageView is the standard page-view event.
const EventPageView = backend.PixelPageView

// Client is one browser session's pixel.
type Client struct {
	endpoint    string
	accessToken string
	externalID  string
	poster      *backend.Poster
	now         func() time.Time

	mu      sync.Mutex
	pixelID string
}

// New creates a client posting to endpoint (e.g. https://graph.facebook.com/v18.0).
// sessionID is hashed into the anonymous external id sent with every event.
func New(endpoint, accessToken, sessionID string, poster *backend.Poster) *Client {
	sum := sha256.Sum256([]byte(sessionID))
	return &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		accessToken: accessToken,
		externalID:  hex.EncodeToString(sum[:]),
		poster:      poster,
		now:         time.Now,
	}
}

type request struct {
	Data []serverEvent `json:"data"`
}

type serverEvent struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	EventID        string         `json:"event_id"`
	ActionSource   string         `json:"action_source"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	UserData       userData       `json:"user_data"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
}

type userData struct {
	ExternalID []string `json:"external_id"`
}

// Init binds the pixel id.
func (c *Client) Init(ctx context.Context, pixelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pixelID = pixelID
	return nil
}

// Track sends a standard event such as PageView.
func (c *Client) Track(ctx context.Context, name string, attrs event.Attributes) error {
	return c.send(ctx, name, attrs)
}

// TrackCustom sends an application-defined event.
func (c *Client) TrackCustom(ctx context.Context, name string, attrs event.Attributes) error {
	return c.send(ctx, name, attrs)
}

func (c *Client) send(ctx context.Context, name string, attrs event.Attributes) error {
	c.mu.Lock()
	pixelID := c.pixelID
	c.mu.Unlock()
	if pixelID == "" {
		return backend.ErrNotInitialized
	}

	custom := make(map[string]any, len(attrs))
	for k, v := range attrs {
		custom[k] = v
	}
	ev := serverEvent{
		EventName:      name,
		EventTime:      c.now().Unix(),
		EventID:        uuid.NewString(),
		ActionSource:   "website",
		EventSourceURL: attrs.String(event.KeyPageLocation),
		UserData:       userData{ExternalID: []string{c.externalID}},
		CustomData:     custom,
	}

	q := url.Values{}
	q.Set("access_token", c.accessToken)
	target := c.endpoint + "/" + url.PathEscape(pixelID) + "/events?" + q.Encode()
	return c.poster.PostJSON(ctx, backend.NamePixel, target, request{Data: []serverEvent{ev}}, nil)
}
