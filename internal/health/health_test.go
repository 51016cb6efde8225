package health

import (
	"context"
	"errors"
	"strings"
	"testing"

	"brokerhub/core/internal/storage"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCheckAllHealthy(t *testing.T) {
	st := storage.NewMemory(0)
	status := CheckAll(context.Background(), Deps{
		Store:    st,
		Upstream: pingFunc(func(context.Context) error { return nil }),
	})
	if !status.OK {
		t.Fatalf("expected healthy, got:\n%s", status)
	}
	if len(status.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(status.Checks))
	}
	if keys, _ := st.Keys(); len(keys) != 0 {
		t.Fatalf("health check key left behind: %v", keys)
	}
}

func TestCheckAllReportsFailures(t *testing.T) {
	status := CheckAll(context.Background(), Deps{
		Store:    storage.NewMemory(1),
		Upstream: pingFunc(func(context.Context) error { return errors.New("boom") }),
	})
	if status.OK {
		t.Fatalf("expected failure")
	}
	for _, c := range status.Checks {
		if c.OK {
			t.Fatalf("check %s unexpectedly ok", c.Name)
		}
		if c.Error == "" {
			t.Fatalf("check %s has no error", c.Name)
		}
	}
	if !strings.Contains(status.String(), "FAIL") {
		t.Fatalf("String() missing FAIL: %s", status)
	}
}

func TestMissingUpstream(t *testing.T) {
	status := CheckAll(context.Background(), Deps{Store: storage.NewMemory(0)})
	if status.OK {
		t.Fatalf("expected failure without upstream")
	}
	if status.Checks[1].Error != "UPSTREAM_BASE_URL not set" {
		t.Fatalf("unexpected error %q", status.Checks[1].Error)
	}
}
