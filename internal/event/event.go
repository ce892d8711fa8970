package event

import (
	"encoding/json"
	"fmt"
)

// Category groups tracking events by the area of the marketplace they come from.
type Category string

const (
	CategoryGlobal     Category = "Global"
	CategoryStorefront Category = "Storefront"
	CategoryDiscovery  Category = "Discovery"
	CategoryMinter     Category = "Minter"
	CategoryMisc       Category = "Misc"
	CategoryProfile    Category = "Profile"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryGlobal, CategoryStorefront, CategoryDiscovery,
		CategoryMinter, CategoryMisc, CategoryProfile:
		return true
	}
	return false
}

func (c *Category) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if !Category(s).Valid() {
		return fmt.Errorf("unknown event category %q", s)
	}
	*c = Category(s)
	return nil
}

// Attribute keys shared by every backend payload.
const (
	KeyCategory     = "event_category"
	KeyLabel        = "event_label"
	KeyValue        = "value"
	KeySolValue     = "sol_value"
	KeyPageLocation = "page_location"
	KeyPagePath     = "page_path"
	KeyPubkey       = "pubkey"
	KeyItems        = "items"
	KeyItemListID   = "item_list_id"
)

// Well-known actions emitted by the dispatcher itself.
const (
	ActionPageView               = "page_view"
	ActionWalletConnectionMade   = "Wallet Connection Made"
	ActionWalletConnectionBroken = "Wallet Connection Broken"
)

// Attributes is the composed payload forwarded to backends.
type Attributes map[string]any

// Clone returns a shallow copy so one backend cannot mutate another's payload.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Float returns the numeric value stored under key, if any.
func (a Attributes) Float(key string) (float64, bool) {
	switch n := a[key].(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// String returns the string stored under key, or "".
func (a Attributes) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// TrackingEvent is the normalized input accepted from UI code.
// It is built at the call site and consumed immediately.
type TrackingEvent struct {
	Action   string         `json:"action"`
	Category Category       `json:"category"`
	Label    string         `json:"label,omitempty"`
	Value    *float64       `json:"value,omitempty"`
	SolValue *float64       `json:"sol_value,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
	// Listing, when set, adds the listing's attributes to the event.
	Listing *Listing `json:"listing,omitempty"`
	// Listings is a displayed list of listings (search results, a storefront
	// grid). It is sent as ecommerce items under ListID.
	Listings []Listing `json:"listings,omitempty"`
	ListID   string    `json:"list_id,omitempty"`
}

// Validate checks the fields every event must carry.
func (e *TrackingEvent) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("event action is required")
	}
	if !e.Category.Valid() {
		return fmt.Errorf("event category %q is not valid", e.Category)
	}
	return nil
}

// Attributes flattens the event into backend attributes. Value and SolValue are
// included as-is; the dispatcher strips and normalizes them.
func (e *TrackingEvent) Attributes() Attributes {
	attrs := make(Attributes, len(e.Extra)+4)
	if e.Listing != nil {
		attrs = ListingAttributes(*e.Listing)
	}
	if len(e.Listings) > 0 {
		attrs[KeyItems] = ListingItems(e.Listings, e.ListID)
		if e.ListID != "" {
			attrs[KeyItemListID] = e.ListID
		}
	}
	for k, v := range e.Extra {
		attrs[k] = v
	}
	attrs[KeyCategory] = string(e.Category)
	if e.Label != "" {
		attrs[KeyLabel] = e.Label
	}
	if e.Value != nil {
		attrs[KeyValue] = *e.Value
	}
	if e.SolValue != nil {
		attrs[KeySolValue] = *e.SolValue
	}
	return attrs
}
