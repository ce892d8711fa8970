package tracking

import (
	"net/url"

	"github.com/gyaneshwarpardhi/trackrelay/internal/event"
)

// Location is the page the session is currently on.
type Location struct {
	Origin string // scheme://host[:port]
	Path   string
}

// ParseLocation splits a full page URL into a Location.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, err
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return Location{Origin: u.Scheme + "://" + u.Host, Path: path}, nil
}

// Href is the full URL of the current page.
func (l Location) Href() string {
	return l.Origin + l.Path
}

// Host is the host part of Origin.
func (l Location) Host() string {
	u, err := url.Parse(l.Origin)
	if err != nil {
		return ""
	}
	return u.Host
}

// composeAttributes builds the payload every backend receives. When a SOL
// amount and a rate are both known, value is replaced by its USD equivalent
// and sol_value is kept; otherwise value passes through and sol_value is
// dropped. Caller attributes override the page fields.
func composeAttributes(attrs event.Attributes, loc Location, solRate float64) event.Attributes {
	out := make(event.Attributes, len(attrs)+3)
	out[event.KeyPageLocation] = loc.Href()
	out[event.KeyPagePath] = loc.Path

	sol, _ := attrs.Float(event.KeySolValue)
	if sol != 0 && solRate != 0 {
		out[event.KeyValue] = sol * solRate
		out[event.KeySolValue] = sol
	} else if v, ok := attrs[event.KeyValue]; ok && v != nil {
		out[event.KeyValue] = v
	}

	for k, v := range attrs {
		if k == event.KeyValue || k == event.KeySolValue {
			continue
		}
		out[k] = v
	}
	return out
}
