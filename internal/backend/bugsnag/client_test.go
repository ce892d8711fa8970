package bugsnag_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gyaneshwarpardhi/trackrelay/internal/backend"
	"github.com/gyaneshwarpardhi/trackrelay/internal/backend/bugsnag"
)

// Bugsnag rejects keys that are not 32 characters before sending.
const apiKey = "0123456789abcdef0123456789abcdef"

type notifyServer struct {
	mu  sync.Mutex
	got []map[string]any
}

func (s *notifyServer) reports() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.got...)
}

func newNotifyServer(t *testing.T) (*httptest.Server, *notifyServer) {
	t.Helper()
	ns := &notifyServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		ns.mu.Lock()
		ns.got = append(ns.got, body)
		ns.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, ns
}

func firstEvent(body map[string]any) map[string]any {
	return body["events"].([]any)[0].(map[string]any)
}

func TestClient_NotifyAttachesUser(t *testing.T) {
	srv, ns := newNotifyServer(t)
	c := bugsnag.New(srv.URL, srv.Client().Transport)
	ctx := context.Background()

	if err := c.Notify(ctx, errors.New("boom"), nil); !errors.Is(err, backend.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}

	err := c.Start(ctx, backend.ErrorReporting{
		APIKey:     apiKey,
		AppVersion: "0.1.0",
		OnError:    func(r *backend.Report) { r.SetUser("ABC") },
	})
	if err != nil {
		t.Fatal(err)
	}
	err = c.Notify(ctx, &bugsnag.ClassError{Class: "WalletError", Err: errors.New("rejected")}, map[string]any{"route": "/"})
	if err != nil {
		t.Fatal(err)
	}

	got := ns.reports()
	if len(got) != 1 {
		t.Fatalf("expected one report, got %d", len(got))
	}
	if got[0]["apiKey"] != apiKey {
		t.Errorf("apiKey = %v", got[0]["apiKey"])
	}
	ev := firstEvent(got[0])
	if ev["user"].(map[string]any)["id"] != "ABC" {
		t.Errorf("user = %v", ev["user"])
	}
	app := ev["app"].(map[string]any)
	if app["releaseStage"] != "unknown" || app["version"] != "0.1.0" {
		t.Errorf("app = %v", app)
	}
	exc := ev["exceptions"].([]any)[0].(map[string]any)
	if exc["errorClass"] != "WalletError" || exc["message"] != "rejected" {
		t.Errorf("exception = %v", exc)
	}
	if ev["severity"] != "error" {
		t.Errorf("severity = %v", ev["severity"])
	}
	if ev["metaData"].(map[string]any)["custom"].(map[string]any)["route"] != "/" {
		t.Errorf("metaData = %v", ev["metaData"])
	}
}

func TestClient_PanickingHookStillReports(t *testing.T) {
	srv, ns := newNotifyServer(t)
	c := bugsnag.New(srv.URL, srv.Client().Transport)
	ctx := context.Background()

	err := c.Start(ctx, backend.ErrorReporting{
		APIKey: apiKey,
		OnError: func(r *backend.Report) {
			r.SetUser("half-written")
			panic("hook bug")
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Notify(ctx, errors.New("boom"), nil); err != nil {
		t.Fatalf("notify: %v", err)
	}
	got := ns.reports()
	if len(got) != 1 {
		t.Fatalf("expected one report, got %d", len(got))
	}
	if u, ok := firstEvent(got[0])["user"].(map[string]any); ok && u["id"] == "half-written" {
		t.Errorf("partial hook changes leaked into report")
	}
}

func TestClient_UpstreamRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)
	c := bugsnag.New(srv.URL, srv.Client().Transport)
	ctx := context.Background()
	if err := c.Start(ctx, backend.ErrorReporting{APIKey: apiKey}); err != nil {
		t.Fatal(err)
	}
	if err := c.Notify(ctx, errors.New("boom"), nil); err == nil {
		t.Error("expected delivery error")
	}
}

func TestClient_StartOnce(t *testing.T) {
	c := bugsnag.New("http://unused", nil)
	ctx := context.Background()
	if err := c.Start(ctx, backend.ErrorReporting{}); err == nil {
		t.Fatal("expected error without api key")
	}
	if err := c.Start(ctx, backend.ErrorReporting{APIKey: apiKey}); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(ctx, backend.ErrorReporting{APIKey: "b"}); err != nil {
		t.Fatal(err)
	}
}
