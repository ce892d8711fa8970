package tracking_test

import (
	"context"
	"errors"
	"sync"

	"github.com/gyaneshwarpardhi/trackrelay/internal/backend"
	"github.com/gyaneshwarpardhi/trackrelay/internal/config"
	"github.com/gyaneshwarpardhi/trackrelay/internal/event"
	"github.com/gyaneshwarpardhi/trackrelay/internal/tracking"
)

// call is one recorded backend invocation.
type call struct {
	Method string
	Name   string
	Attrs  event.Attributes
	Arg    any
}

// recorder is embedded by every spy.
type recorder struct {
	mu      sync.Mutex
	calls   []call
	failOn  string // method name that returns an error
	panicOn string // method name that panics
}

func (r *recorder) record(c call) error {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	failOn, panicOn := r.failOn, r.panicOn
	r.mu.Unlock()
	if c.Method == panicOn {
		panic("spy panic in " + c.Method)
	}
	if c.Method == failOn {
		return errors.New("spy failure in " + c.Method)
	}
	return nil
}

func (r *recorder) Calls(method string) []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []call
	for _, c := range r.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// named returns recorded calls of method with the given event name.
func (r *recorder) named(method, name string) []call {
	var out []call
	for _, c := range r.Calls(method) {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

type pageSpy struct{ recorder }

func (s *pageSpy) Configure(_ context.Context, id string, cfg backend.PageConfig) error {
	return s.record(call{Method: "Configure", Name: id, Arg: cfg})
}
func (s *pageSpy) SetUserProperties(_ context.Context, p backend.UserProperties) error {
	return s.record(call{Method: "SetUserProperties", Arg: p})
}
func (s *pageSpy) Event(_ context.Context, action string, attrs event.Attributes) error {
	return s.record(call{Method: "Event", Name: action, Attrs: attrs})
}

type behavioralSpy struct{ recorder }

func (s *behavioralSpy) Init(_ context.Context, token string, opts backend.BehavioralOptions) error {
	return s.record(call{Method: "Init", Name: token, Arg: opts})
}
func (s *behavioralSpy) Identify(_ context.Context, id string) error {
	return s.record(call{Method: "Identify", Name: id})
}
func (s *behavioralSpy) SetOnce(_ context.Context, props event.Attributes) error {
	return s.record(call{Method: "SetOnce", Attrs: props})
}
func (s *behavioralSpy) Track(_ context.Context, action string, attrs event.Attributes) error {
	return s.record(call{Method: "Track", Name: action, Attrs: attrs})
}
func (s *behavioralSpy) Reset(_ context.Context) error {
	return s.record(call{Method: "Reset"})
}

type pixelSpy struct{ recorder }

func (s *pixelSpy) Init(_ context.Context, id string) error {
	return s.record(call{Method: "Init", Name: id})
}
func (s *pixelSpy) Track(_ context.Context, name string, attrs event.Attributes) error {
	return s.record(call{Method: "Track", Name: name, Attrs: attrs})
}
func (s *pixelSpy) TrackCustom(_ context.Context, name string, attrs event.Attributes) error {
	return s.record(call{Method: "TrackCustom", Name: name, Attrs: attrs})
}

type reporterSpy struct {
	recorder
	cfg backend.ErrorReporting
}

func (s *reporterSpy) Start(_ context.Context, cfg backend.ErrorReporting) error {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return s.record(call{Method: "Start", Arg: cfg})
}
func (s *reporterSpy) Notify(_ context.Context, err error, meta map[string]any) error {
	r := &backend.Report{Message: err.Error(), Metadata: meta}
	s.mu.Lock()
	hook := s.cfg.OnError
	s.mu.Unlock()
	if hook != nil {
		hook(r)
	}
	return s.record(call{Method: "Notify", Name: r.UserID, Arg: r})
}

// staticRate returns a fixed rate (or error) immediately.
type staticRate struct {
	rate float64
	err  error
}

func (r staticRate) SolUSD(context.Context) (float64, error) { return r.rate, r.err }

type fixture struct {
	page       *pageSpy
	behavioral *behavioralSpy
	pixel      *pixelSpy
	reporter   *reporterSpy
	d          *tracking.Dispatcher
}

var allTokens = config.Tokens{
	GA4ID:         "G-TEST",
	MixpanelToken: "mp-token",
	MetaID:        "pixel-1",
	BugsnagAPIKey: "bs-key",
	Environment:   "test",
}

func newFixture(tokens config.Tokens, rates tracking.RateSource) *fixture {
	f := &fixture{
		page:       &pageSpy{},
		behavioral: &behavioralSpy{},
		pixel:      &pixelSpy{},
		reporter:   &reporterSpy{},
	}
	f.d = tracking.New(
		tracking.Settings{Tokens: tokens, AppVersion: "0.1.0"},
		tracking.Backends{Page: f.page, Behavioral: f.behavioral, Pixel: f.pixel, Errors: f.reporter},
		rates,
		tracking.Location{Origin: "https://holaplex.com", Path: "/"},
	)
	f.d.SetCapabilities(tracking.Capabilities{Gtag: true, Pixel: true})
	return f
}

// reset forgets every call recorded so far.
func (f *fixture) reset() {
	for _, r := range []*recorder{&f.page.recorder, &f.behavioral.recorder, &f.pixel.recorder, &f.reporter.recorder} {
		r.mu.Lock()
		r.calls = nil
		r.mu.Unlock()
	}
}
