package cache

import (
	"testing"
	"time"

	"brokerhub/core/internal/storage"
)

func TestJanitorSweepPurgesMemoryAndMirror(t *testing.T) {
	clk := newClock()
	st := storage.NewMemory(0)
	search := New[string](Options{Namespace: "search", Store: st, Now: clk.Now})
	brokers := New[int](Options{Namespace: "brokers", Store: st, Now: clk.Now})
	search.Set("q", "v", time.Second)
	brokers.Set("list", 3, time.Second)
	brokers.Set("pinned", 1, NoExpiry)
	clk.Advance(2 * time.Second)

	j, err := NewJanitor("@every 1h", search, brokers)
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}
	j.Sweep()

	if search.Size() != 0 || brokers.Size() != 1 {
		t.Fatalf("sizes after sweep: search=%d brokers=%d", search.Size(), brokers.Size())
	}
	keys, _ := st.Keys()
	if len(keys) != 1 || keys[0] != "brokers:pinned" {
		t.Fatalf("durable keys after sweep: %v", keys)
	}
}

func TestJanitorRejectsBadSchedule(t *testing.T) {
	if _, err := NewJanitor("every now and then"); err == nil {
		t.Fatalf("expected schedule parse error")
	}
}

func TestJanitorStartStop(t *testing.T) {
	j, err := NewJanitor("@every 1h", New[string](Options{}))
	if err != nil {
		t.Fatal(err)
	}
	j.Start()
	select {
	case <-j.Stop().Done():
	case <-time.After(time.Second):
		t.Fatalf("janitor did not stop")
	}
}
