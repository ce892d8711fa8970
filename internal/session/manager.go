// Package session owns the tracking dispatcher of every connected browser
// session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/trackrelay/internal/config"
	"github.com/gyaneshwarpardhi/trackrelay/internal/metrics"
	"github.com/gyaneshwarpardhi/trackrelay/internal/route"
	"github.com/gyaneshwarpardhi/trackrelay/internal/tracking"
)

// ErrNotFound is returned for unknown or evicted session ids.
var ErrNotFound = errors.New("session not found")

// Options describe the page a session starts on.
type Options struct {
	// URL is the full page URL. When empty, Host and Path are used.
	URL  string
	Host string
	Path string
	// Consent overrides the configured consent default.
	Consent      *bool
	Capabilities tracking.Capabilities
}

func (o Options) location() (tracking.Location, error) {
	if o.URL != "" {
		loc, err := tracking.ParseLocation(o.URL)
		if err != nil {
			return tracking.Location{}, fmt.Errorf("invalid url: %w", err)
		}
		if loc.Host() == "" {
			return tracking.Location{}, fmt.Errorf("invalid url %q: host is missing", o.URL)
		}
		return loc, nil
	}
	if o.Host == "" {
		return tracking.Location{}, errors.New("url or host is required")
	}
	path := o.Path
	if path == "" {
		path = "/"
	}
	return tracking.Location{Origin: "https://" + o.Host, Path: path}, nil
}

// Session is one browser session.
type Session struct {
	ID         string
	Dispatcher *tracking.Dispatcher
	Routes     *route.Events
	CreatedAt  time.Time

	release  func()
	lastSeen atomic.Int64 // unix nanos
}

// LastSeen is the time of the last Get or Create.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// Manager holds the live sessions. New sessions are built from the current
// config snapshot; tokens are fixed for the manager's life.
type Manager struct {
	cfg     atomic.Pointer[config.Config]
	tokens  config.Tokens
	rates   tracking.RateSource
	factory BackendFactory
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager. rates may be nil, in which case values are
// never normalized.
func NewManager(cfg *config.Config, tokens config.Tokens, rates tracking.RateSource, factory BackendFactory) *Manager {
	m := &Manager{
		tokens:   tokens,
		rates:    rates,
		factory:  factory,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	m.cfg.Store(cfg)
	return m
}

// Config returns the snapshot new sessions are built from.
func (m *Manager) Config() *config.Config {
	return m.cfg.Load()
}

// SwapConfig replaces the snapshot. Existing sessions keep theirs.
func (m *Manager) SwapConfig(cfg *config.Config) {
	m.cfg.Store(cfg)
}

// Create starts a session. Its dispatcher is initialized immediately when
// consent is given.
func (m *Manager) Create(ctx context.Context, opts Options) (*Session, error) {
	loc, err := opts.location()
	if err != nil {
		return nil, err
	}
	cfg := m.Config()
	id := uuid.New().String()

	consent := cfg.Tracking.ConsentAccepted()
	if opts.Consent != nil {
		consent = *opts.Consent
	}

	d := tracking.New(tracking.Settings{
		Tokens:     m.tokens,
		AppVersion: cfg.Tracking.AppVersion,
		Debug:      cfg.Tracking.Debug,
		Logger:     slog.Default().With("session", id),
	}, m.factory(cfg, m.tokens, id), m.rates, loc)
	d.SetCapabilities(opts.Capabilities)

	now := m.now()
	s := &Session{
		ID:         id,
		Dispatcher: d,
		Routes:     route.NewEvents(),
		CreatedAt:  now,
	}
	s.release = d.BindRoutes(s.Routes)
	s.touch(now)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	metrics.SessionsActive.Inc()

	d.SetConsent(ctx, consent)
	slog.Debug("session created", "session", id, "host", loc.Host(), "consent", consent)
	return s, nil
}

// Get returns a live session and marks it as seen.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(m.now())
	return s, nil
}

// Close removes a session and releases its route subscription.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	m.closed(s)
	return nil
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		m.closed(s)
	}
}

func (m *Manager) closed(s *Session) {
	s.release()
	metrics.SessionsActive.Dec()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than maxIdle and returns how many
// were closed.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)
	var idle []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.closed(s)
	}
	return len(idle)
}

// Run sweeps idle sessions on the configured interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	every := time.Duration(m.Config().Tracking.SweepEveryMs) * time.Millisecond
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			maxIdle := time.Duration(m.Config().Tracking.SessionIdleMs) * time.Millisecond
			if n := m.Sweep(maxIdle); n > 0 {
				slog.Info("idle sessions evicted", "count", n, "active", m.Len())
			}
		}
	}
}
