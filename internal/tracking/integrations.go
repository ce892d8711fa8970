package tracking

import "github.com/gyaneshwarpardhi/trackrelay/internal/config"

// Capabilities are what the browser reports about its third-party scripts.
// They change as scripts finish loading.
type Capabilities struct {
	Gtag  bool `json:"gtag"`
	Pixel bool `json:"pixel"`
}

// IntegrationSet says which backends receive a call. It is recomputed for
// every call and never stored.
type IntegrationSet struct {
	BehavioralAnalytics bool `json:"behavioral_analytics"`
	PixelAds            bool `json:"pixel_ads"`
	PageAnalytics       bool `json:"page_analytics"`
}

// Any reports whether at least one backend is enabled.
func (s IntegrationSet) Any() bool {
	return s.BehavioralAnalytics || s.PixelAds || s.PageAnalytics
}

// ComputeIntegrations derives the set from configured tokens, the browser's
// capabilities, and which clients exist.
func ComputeIntegrations(tokens config.Tokens, caps Capabilities, b Backends) IntegrationSet {
	return IntegrationSet{
		BehavioralAnalytics: tokens.MixpanelToken != "" && b.Behavioral != nil,
		PixelAds:            tokens.MetaID != "" && caps.Pixel && b.Pixel != nil,
		PageAnalytics:       tokens.GA4ID != "" && caps.Gtag && b.Page != nil,
	}
}
