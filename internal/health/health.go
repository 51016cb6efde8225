package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"brokerhub/core/internal/storage"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

// Pinger is anything that can prove a remote dependency answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Store    storage.Store
	Upstream Pinger // nil when no upstream is configured
}

const checkKey = "__health__"

// CheckAll runs all health checks and returns combined status
func CheckAll(ctx context.Context, deps Deps) HealthStatus {
	checks := []CheckResult{
		checkStorage(deps.Store),
		checkUpstream(ctx, deps.Upstream),
	}

	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}

	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

// checkStorage writes, reads back and removes a scratch key.
func checkStorage(st storage.Store) (result CheckResult) {
	start := time.Now()
	result.Name = "storage"
	defer func() { result.Latency = time.Since(start) }()

	if st == nil {
		result.Error = "no store configured"
		return result
	}
	want := start.UTC().Format(time.RFC3339Nano)
	if err := st.SetItem(checkKey, want); err != nil {
		result.Error = fmt.Sprintf("write failed: %v", err)
		return result
	}
	got, ok, err := st.GetItem(checkKey)
	_ = st.RemoveItem(checkKey)
	switch {
	case err != nil:
		result.Error = fmt.Sprintf("read failed: %v", err)
	case !ok || got != want:
		result.Error = "value did not round-trip"
	default:
		result.OK = true
	}
	return result
}

func checkUpstream(ctx context.Context, p Pinger) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "upstream"}

	if p == nil {
		result.Error = "UPSTREAM_BASE_URL not set"
		result.Latency = time.Since(start)
		return result
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := p.Ping(ctx)
	result.Latency = time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			result.Error = "timed out"
		} else {
			result.Error = err.Error()
		}
		return result
	}
	result.OK = true
	return result
}
