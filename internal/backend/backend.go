// Package backend holds what the analytics clients share: names, option
// types, and the JSON transport.
package backend

import "errors"

// Backend names, used in logs and metric labels.
const (
	NameGA4      = "ga4"
	NameMixpanel = "mixpanel"
	NamePixel    = "pixel"
	NameBugsnag  = "bugsnag"
)

// PixelPageView is the pixel's standard page-view event name.
const PixelPageView = "PageView"

// ErrNotInitialized is returned by a client asked to send before its
// init/configure call. Callers drop the event for that backend.
var ErrNotInitialized = errors.New("backend not initialized")

// PageConfig configures the page-analytics measurement stream.
type PageConfig struct {
	// SendPageView fires a page_view as part of configuration. The dispatcher
	// always disables it and sends page views itself on route change.
	SendPageView bool
	PagePath     string
	PageLocation string
}

// UserProperties identify the wallet on page analytics. Empty strings clear
// the identity.
type UserProperties struct {
	UserID string
	Pubkey string
}

// BehavioralOptions are passed when the behavioral SDK is initialized.
type BehavioralOptions struct {
	Debug bool
}

// Report is one error about to be delivered to the error-reporting service.
// OnError hooks may mutate it.
type Report struct {
	ErrorClass string
	Message    string
	Severity   string
	UserID     string
	Metadata   map[string]any
}

// SetUser attaches a user id to the report.
func (r *Report) SetUser(id string) {
	r.UserID = id
}

// ErrorReporting configures the error-reporting backend.
type ErrorReporting struct {
	APIKey       string
	AppVersion   string
	ReleaseStage string
	// OnError runs for every report before it is sent.
	OnError func(*Report)
}
