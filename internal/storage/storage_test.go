package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	f, err := OpenFile(filepath.Join(dir, "kv.json"))
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	s, err := OpenSQLite(filepath.Join(dir, "kv.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	stores := map[string]Store{
		DriverMemory: NewMemory(0),
		DriverFile:   f,
		DriverSQLite: s,
	}
	t.Cleanup(func() {
		for _, st := range stores {
			st.Close()
		}
	})
	return stores
}

func TestStoreContract(t *testing.T) {
	for name, st := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := st.GetItem("missing"); err != nil || ok {
				t.Fatalf("GetItem(missing) = ok=%v err=%v", ok, err)
			}
			if err := st.SetItem("ns:a", "1"); err != nil {
				t.Fatalf("set a: %v", err)
			}
			if err := st.SetItem("ns:b", "2"); err != nil {
				t.Fatalf("set b: %v", err)
			}
			if err := st.SetItem("other", "x"); err != nil {
				t.Fatalf("set other: %v", err)
			}
			if err := st.SetItem("ns:a", "10"); err != nil {
				t.Fatalf("overwrite a: %v", err)
			}
			v, ok, err := st.GetItem("ns:a")
			if err != nil || !ok || v != "10" {
				t.Fatalf("GetItem(ns:a) = %q %v %v", v, ok, err)
			}
			keys, err := KeysWithPrefix(st, "ns:")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]string{"ns:a", "ns:b"}, keys); diff != "" {
				t.Fatalf("prefixed keys (-want +got):\n%s", diff)
			}
			if err := st.RemoveItem("ns:a"); err != nil {
				t.Fatalf("remove: %v", err)
			}
			if err := st.RemoveItem("never-set"); err != nil {
				t.Fatalf("remove missing: %v", err)
			}
			all, _ := st.Keys()
			if diff := cmp.Diff([]string{"ns:b", "other"}, all); diff != "" {
				t.Fatalf("keys after remove (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemoryQuota(t *testing.T) {
	m := NewMemory(10)
	if err := m.SetItem("k", "12345"); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := m.SetItem("j", "1234567"); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if err := m.SetItem("k", "123456789"); err != nil {
		t.Fatalf("overwrite within quota: %v", err)
	}
	m.RemoveItem("k")
	if err := m.SetItem("j", "1234567"); err != nil {
		t.Fatalf("write after free: %v", err)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kv.json")
	f, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetItem("brokerchooser:q", `{"value":1}`); err != nil {
		t.Fatal(err)
	}
	f.Close()

	g, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	v, ok, err := g.GetItem("brokerchooser:q")
	if err != nil || !ok || v != `{"value":1}` {
		t.Fatalf("reopened GetItem = %q %v %v", v, ok, err)
	}
}

func TestFileWatchPicksUpExternalWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.json")
	reader, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	writer, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan struct{}, 8)
	if err := reader.Watch(ctx, func() { changed <- struct{}{} }); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := writer.SetItem("k", "v"); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		if v, ok, _ := reader.GetItem("k"); ok && v == "v" {
			return
		}
		select {
		case <-changed:
		case <-deadline:
			t.Fatalf("reader never saw the external write")
		}
	}
}

func TestFileWatchIgnoresOwnWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.json")
	f, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan struct{}, 8)
	if err := f.Watch(ctx, func() { changed <- struct{}{} }); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := f.SetItem("k", "v"); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
		t.Fatalf("onChange fired for the store's own write")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("redis", ""); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
	st, err := Open("", "")
	if err != nil {
		t.Fatalf("default driver: %v", err)
	}
	if _, ok := st.(*Memory); !ok {
		t.Fatalf("expected memory store by default, got %T", st)
	}
}

func TestClosedMemoryStore(t *testing.T) {
	m := NewMemory(0)
	m.Close()
	if err := m.SetItem("k", "v"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
