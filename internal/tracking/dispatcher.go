// Package tracking fans marketplace tracking events out to the analytics
// backends of one browser session, following the session's consent and
// wallet identity.
package tracking

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/trackrelay/internal/backend"
	"github.com/gyaneshwarpardhi/trackrelay/internal/config"
	"github.com/gyaneshwarpardhi/trackrelay/internal/event"
	"github.com/gyaneshwarpardhi/trackrelay/internal/metrics"
	"github.com/gyaneshwarpardhi/trackrelay/internal/route"
)

const rateFetchTimeout = 10 * time.Second

// State is the dispatcher lifecycle state.
type State int

const (
	Uninitialized State = iota
	Initialized
)

func (s State) String() string {
	if s == Initialized {
		return "initialized"
	}
	return "uninitialized"
}

// RateSource provides the SOL/USD rate used to normalize values.
type RateSource interface {
	SolUSD(ctx context.Context) (float64, error)
}

// Settings are fixed for the life of a dispatcher.
type Settings struct {
	Tokens     config.Tokens
	AppVersion string
	// Debug logs every dispatcher call at debug level.
	Debug  bool
	Logger *slog.Logger
}

// Dispatcher is the tracking state of one browser session. All methods are
// safe for concurrent use; calls are serialized in arrival order.
type Dispatcher struct {
	settings Settings
	backends Backends
	rates    RateSource
	log      *slog.Logger

	solRate   atomic.Uint64 // math.Float64bits
	rateDone  chan struct{}
	identity  atomic.Value // string, read by the error-report hook
	rateOnce  sync.Once
	reporting atomic.Bool

	mu         sync.Mutex
	state      State
	consent    bool
	started    bool // backend SDKs initialized; never reverts
	caps       Capabilities
	loc        Location
	pubkey     string
	lastPubkey string
}

// New creates an uninitialized dispatcher without consent. Call SetConsent to
// start tracking.
func New(settings Settings, backends Backends, rates RateSource, loc Location) *Dispatcher {
	logger := settings.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		settings: settings,
		backends: backends,
		rates:    rates,
		log:      logger,
		rateDone: make(chan struct{}),
		loc:      loc,
	}
	d.identity.Store("")
	return d
}

// State returns the lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// ConsentAccepted reports the current consent flag.
func (d *Dispatcher) ConsentAccepted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.consent
}

// Integrations returns the integration set as it would be computed now.
func (d *Dispatcher) Integrations() IntegrationSet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.integrations()
}

// SolRate returns the cached SOL/USD rate, or 0 if none was fetched.
func (d *Dispatcher) SolRate() float64 {
	return math.Float64frombits(d.solRate.Load())
}

// RateFetched is closed once the rate fetch started by Initialize finished,
// successfully or not.
func (d *Dispatcher) RateFetched() <-chan struct{} {
	return d.rateDone
}

// SetCapabilities records which third-party scripts the browser has loaded.
func (d *Dispatcher) SetCapabilities(c Capabilities) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps = c
}

// SetConsent applies the user's tracking choice. Granting consent to an
// uninitialized dispatcher initializes it; revoking it afterwards clears the
// identity on page and behavioral analytics. Backends are never initialized
// twice.
func (d *Dispatcher) SetConsent(ctx context.Context, accepted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.consent
	d.consent = accepted
	switch {
	case accepted && d.state == Uninitialized:
		d.initialize(ctx)
	case !accepted && prev && d.state == Initialized:
		d.resetIdentity(ctx)
	case accepted && !prev:
		d.syncWallet(ctx)
	}
}

// Initialize starts every configured backend. It runs once; later calls are
// no-ops. Without consent it does nothing.
func (d *Dispatcher) Initialize(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.consent {
		d.debug("initialize skipped without consent")
		return
	}
	d.initialize(ctx)
}

func (d *Dispatcher) initialize(ctx context.Context) {
	if d.state == Initialized || d.started {
		return
	}
	tokens := d.settings.Tokens
	integrations := d.integrations()

	d.rateOnce.Do(func() {
		go d.fetchRate(context.WithoutCancel(ctx))
	})

	if integrations.PageAnalytics {
		d.forward(ctx, backend.NameGA4, "configure", func(ctx context.Context) error {
			return d.backends.Page.Configure(ctx, tokens.GA4ID, backend.PageConfig{SendPageView: false})
		})
	}
	if integrations.BehavioralAnalytics {
		opts := backend.BehavioralOptions{Debug: !strings.Contains(d.loc.Host(), ".com")}
		d.forward(ctx, backend.NameMixpanel, "init", func(ctx context.Context) error {
			return d.backends.Behavioral.Init(ctx, tokens.MixpanelToken, opts)
		})
	}
	if integrations.PixelAds {
		d.forward(ctx, backend.NamePixel, "init", func(ctx context.Context) error {
			return d.backends.Pixel.Init(ctx, tokens.MetaID)
		})
	}
	if tokens.BugsnagAPIKey != "" && d.backends.Errors != nil {
		releaseStage := tokens.Environment
		if releaseStage == "" {
			releaseStage = "unknown"
		}
		cfg := backend.ErrorReporting{
			APIKey:       tokens.BugsnagAPIKey,
			AppVersion:   d.settings.AppVersion,
			ReleaseStage: releaseStage,
			OnError:      d.attachIdentity,
		}
		ok := d.forward(ctx, backend.NameBugsnag, "start", func(ctx context.Context) error {
			return d.backends.Errors.Start(ctx, cfg)
		})
		d.reporting.Store(ok)
	}
	d.debug("tracking initialized", "integrations", integrations)

	d.started = true
	d.pageview(ctx)
	d.state = Initialized
	d.syncWallet(ctx)
}

// attachIdentity is the error-report hook. It must not block on d.mu since
// reports can be sent while the dispatcher holds it.
func (d *Dispatcher) attachIdentity(r *backend.Report) {
	if pk, _ := d.identity.Load().(string); pk != "" {
		r.SetUser(pk)
	}
}

func (d *Dispatcher) fetchRate(ctx context.Context) {
	defer close(d.rateDone)
	if d.rates == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, rateFetchTimeout)
	defer cancel()
	r, err := d.rates.SolUSD(ctx)
	if err != nil {
		d.log.Warn("sol rate unavailable, values will not be normalized", "err", err)
		return
	}
	d.solRate.Store(math.Float64bits(r))
	d.debug("sol rate cached", "rate", r)
}

// Identify attaches pubkey to page and behavioral analytics. Empty pubkeys
// and calls before initialization are ignored.
func (d *Dispatcher) Identify(ctx context.Context, pubkey string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identify(ctx, pubkey)
}

func (d *Dispatcher) identify(ctx context.Context, pubkey string) {
	if pubkey == "" {
		return
	}
	if !d.started {
		d.debug("identify before initialization ignored", "pubkey", pubkey)
		return
	}
	integrations := d.integrations()
	d.identity.Store(pubkey)

	if integrations.PageAnalytics {
		d.forward(ctx, backend.NameGA4, "set_user_properties", func(ctx context.Context) error {
			return d.backends.Page.SetUserProperties(ctx, backend.UserProperties{UserID: pubkey, Pubkey: pubkey})
		})
	}
	if integrations.BehavioralAnalytics {
		d.forward(ctx, backend.NameMixpanel, "identify", func(ctx context.Context) error {
			return d.backends.Behavioral.Identify(ctx, pubkey)
		})
		d.forward(ctx, backend.NameMixpanel, "set_once", func(ctx context.Context) error {
			return d.backends.Behavioral.SetOnce(ctx, event.Attributes{event.KeyPubkey: pubkey})
		})
	}
	d.debug("identify", "pubkey", pubkey, "integrations", integrations)
}

// ResetIdentity clears the wallet identity on page and behavioral analytics.
func (d *Dispatcher) ResetIdentity(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetIdentity(ctx)
}

func (d *Dispatcher) resetIdentity(ctx context.Context) {
	integrations := d.integrations()
	d.identity.Store("")
	d.lastPubkey = ""

	if integrations.PageAnalytics {
		d.forward(ctx, backend.NameGA4, "set_user_properties", func(ctx context.Context) error {
			return d.backends.Page.SetUserProperties(ctx, backend.UserProperties{})
		})
	}
	if integrations.BehavioralAnalytics {
		d.forward(ctx, backend.NameMixpanel, "reset", func(ctx context.Context) error {
			return d.backends.Behavioral.Reset(ctx)
		})
	}
	d.debug("identity reset")
}

// Pageview tracks a page_view for the current route.
func (d *Dispatcher) Pageview(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pageview(ctx)
}

func (d *Dispatcher) pageview(ctx context.Context) {
	d.track(ctx, event.ActionPageView, event.Attributes{event.KeyPagePath: d.loc.Path})
}

// BindRoutes sends a page view for every completed route change on events
// until the returned release function is called.
func (d *Dispatcher) BindRoutes(events *route.Events) (release func()) {
	return events.On(route.ChangeComplete, d.routeChanged)
}

func (d *Dispatcher) routeChanged(ctx context.Context, path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loc.Path = path
	d.pageview(ctx)
}

// Track forwards action to every enabled backend. It never fails: backend
// errors are logged and counted.
func (d *Dispatcher) Track(ctx context.Context, action string, attrs event.Attributes) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.track(ctx, action, attrs)
}

// TrackEvent tracks a normalized event.
func (d *Dispatcher) TrackEvent(ctx context.Context, ev *event.TrackingEvent) {
	metrics.EventsReceived.WithLabelValues(string(ev.Category)).Inc()
	d.Track(ctx, ev.Action, ev.Attributes())
}

func (d *Dispatcher) track(ctx context.Context, action string, attrs event.Attributes) {
	if !d.consent || !d.started {
		d.debug("track dropped", "action", action, "consent", d.consent, "started", d.started)
		return
	}
	start := time.Now()
	integrations := d.integrations()
	payload := composeAttributes(attrs, d.loc, d.SolRate())

	if integrations.PageAnalytics {
		d.forward(ctx, backend.NameGA4, "event", func(ctx context.Context) error {
			return d.backends.Page.Event(ctx, action, payload.Clone())
		})
	}
	if integrations.BehavioralAnalytics {
		d.forward(ctx, backend.NameMixpanel, "track", func(ctx context.Context) error {
			return d.backends.Behavioral.Track(ctx, action, payload.Clone())
		})
	}
	if integrations.PixelAds {
		if action == event.ActionPageView {
			d.forward(ctx, backend.NamePixel, "track", func(ctx context.Context) error {
				return d.backends.Pixel.Track(ctx, backend.PixelPageView, payload.Clone())
			})
		} else {
			d.forward(ctx, backend.NamePixel, "track_custom", func(ctx context.Context) error {
				return d.backends.Pixel.TrackCustom(ctx, action, payload.Clone())
			})
		}
	}

	metrics.DispatchDuration.Observe(float64(time.Since(start).Milliseconds()))
	d.debug("track", "action", action, "attrs", payload, "integrations", integrations)
}

// ReportError sends a client-side error to the error-reporting backend, if it
// was started. The current wallet is attached.
func (d *Dispatcher) ReportError(ctx context.Context, err error, metadata map[string]any) error {
	if !d.reporting.Load() {
		return backend.ErrNotInitialized
	}
	if d.forward(ctx, backend.NameBugsnag, "notify", func(ctx context.Context) error {
		return d.backends.Errors.Notify(ctx, err, metadata)
	}) {
		return nil
	}
	return errors.New("error report not delivered")
}

// forward runs one backend call. Errors and panics stay here.
func (d *Dispatcher) forward(ctx context.Context, name, call string, fn func(context.Context) error) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			metrics.BackendCalls.WithLabelValues(name, call, "panic").Inc()
			d.log.Error("backend call panicked", "backend", name, "call", call, "panic", p)
			ok = false
		}
	}()

	err := fn(ctx)
	switch {
	case err == nil:
		metrics.BackendCalls.WithLabelValues(name, call, "ok").Inc()
		return true
	case errors.Is(err, backend.ErrNotInitialized):
		metrics.BackendCalls.WithLabelValues(name, call, "skipped").Inc()
		d.debug("backend not ready, call dropped", "backend", name, "call", call)
		return false
	default:
		metrics.BackendCalls.WithLabelValues(name, call, "error").Inc()
		d.log.Warn("backend call failed", "backend", name, "call", call, "err", err)
		return false
	}
}

func (d *Dispatcher) integrations() IntegrationSet {
	return ComputeIntegrations(d.settings.Tokens, d.caps, d.backends)
}

func (d *Dispatcher) debug(msg string, args ...any) {
	if d.settings.Debug {
		d.log.Debug(msg, args...)
	}
}
