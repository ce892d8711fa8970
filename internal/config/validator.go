package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the config for:
//   - Required fields
//   - Positive engine and session limits
//   - Absolute http(s) backend endpoints
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	if cfg.Engine.Workers < 0 {
		errs = append(errs, "engine.workers must not be negative")
	}
	if cfg.Engine.QueueDepth < 0 {
		errs = append(errs, "engine.queue_depth must not be negative")
	}
	if cfg.Engine.EventTimeoutMs < 0 {
		errs = append(errs, "engine.event_timeout_ms must not be negative")
	}
	if cfg.Tracking.SessionIdleMs < 0 {
		errs = append(errs, "tracking.session_idle_ms must not be negative")
	}

	backends := []struct {
		name string
		conf BackendConf
	}{
		{"ga4", cfg.Backends.GA4},
		{"mixpanel", cfg.Backends.Mixpanel},
		{"pixel", cfg.Backends.Pixel},
		{"bugsnag", cfg.Backends.Bugsnag},
		{"coingecko", cfg.Backends.Coingecko},
	}
	for _, b := range backends {
		validateBackend(b.name, b.conf, &errs)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateBackend(name string, b BackendConf, errs *[]string) {
	if b.Endpoint == "" {
		*errs = append(*errs, fmt.Sprintf("backends.%s.endpoint is required", name))
		return
	}
	u, err := url.Parse(b.Endpoint)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("backends.%s.endpoint: %s", name, err))
		return
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		*errs = append(*errs, fmt.Sprintf("backends.%s.endpoint %q must be an absolute http(s) URL", name, b.Endpoint))
	}
	if b.TimeoutMs < 0 {
		*errs = append(*errs, fmt.Sprintf("backends.%s.timeout_ms must not be negative", name))
	}
}
