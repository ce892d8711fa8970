package tracking

import (
	"context"

	"github.com/gyaneshwarpardhi/trackrelay/internal/backend"
	"github.com/gyaneshwarpardhi/trackrelay/internal/event"
)

// PageAnalytics is the pageview/event analytics service (GA4).
type PageAnalytics interface {
	Configure(ctx context.Context, measurementID string, cfg backend.PageConfig) error
	SetUserProperties(ctx context.Context, props backend.UserProperties) error
	Event(ctx context.Context, action string, attrs event.Attributes) error
}

// BehavioralAnalytics is the product analytics service (Mixpanel).
type BehavioralAnalytics interface {
	Init(ctx context.Context, token string, opts backend.BehavioralOptions) error
	Identify(ctx context.Context, distinctID string) error
	SetOnce(ctx context.Context, props event.Attributes) error
	Track(ctx context.Context, action string, attrs event.Attributes) error
	Reset(ctx context.Context) error
}

// Pixel is the social-ads pixel (Meta).
type Pixel interface {
	Init(ctx context.Context, pixelID string) error
	Track(ctx context.Context, name string, attrs event.Attributes) error
	TrackCustom(ctx context.Context, name string, attrs event.Attributes) error
}

// ErrorReporter is the error-reporting service (Bugsnag).
type ErrorReporter interface {
	Start(ctx context.Context, cfg backend.ErrorReporting) error
	Notify(ctx context.Context, err error, metadata map[string]any) error
}

// Backends are the clients a dispatcher fans out to. A nil field disables
// that backend.
type Backends struct {
	Page       PageAnalytics
	Behavioral BehavioralAnalytics
	Pixel      Pixel
	Errors     ErrorReporter
}
