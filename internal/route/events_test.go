package route_test

import (
	"context"
	"testing"

	"go.uber.org/goleak"

	"github.com/gyaneshwarpardhi/trackrelay/internal/route"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEvents_OnEmitOff(t *testing.T) {
	ctx := context.Background()
	e := route.NewEvents()
	var got []string
	off := e.On(route.ChangeComplete, func(_ context.Context, path string) { got = append(got, path) })

	e.Emit(ctx, route.ChangeComplete, "/listings")
	e.Emit(ctx, "routeChangeStart", "/ignored")
	if len(got) != 1 || got[0] != "/listings" {
		t.Fatalf("expected [/listings], got %v", got)
	}

	off()
	off() // idempotent
	e.Emit(ctx, route.ChangeComplete, "/after-release")
	if len(got) != 1 {
		t.Errorf("handler still called after release: %v", got)
	}
	if n := e.Len(route.ChangeComplete); n != 0 {
		t.Errorf("expected no listeners, got %d", n)
	}
}

func TestEvents_RegistrationOrder(t *testing.T) {
	ctx := context.Background()
	e := route.NewEvents()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		e.On(route.ChangeComplete, func(context.Context, string) { order = append(order, i) })
	}
	e.Emit(ctx, route.ChangeComplete, "/")
	for i, v := range order {
		if v != i {
			t.Fatalf("handlers ran out of order: %v", order)
		}
	}
}

func TestEvents_SelfReleaseDuringEmit(t *testing.T) {
	ctx := context.Background()
	e := route.NewEvents()
	calls := 0
	var off func()
	off = e.On(route.ChangeComplete, func(context.Context, string) {
		calls++
		off()
	})
	e.Emit(ctx, route.ChangeComplete, "/a")
	e.Emit(ctx, route.ChangeComplete, "/b")
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
