package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"brokerhub/core/internal/cache"
	"brokerhub/core/internal/storage"
)

func seed(t *testing.T, now time.Time) storage.Store {
	t.Helper()
	st := storage.NewMemory(0)
	c := cache.New[map[string]string](cache.Options{Namespace: "cryptix/search", Store: st, Now: func() time.Time { return now }})
	c.Set("q=btc", map[string]string{"top": "kraken"}, time.Minute)
	c.Set("q=eth", map[string]string{"top": "coinbase"}, cache.NoExpiry)
	st.SetItem("cryptix:q=btc", "{}")
	return st
}

func TestRunKeysYAML(t *testing.T) {
	st := seed(t, time.Now())
	var buf bytes.Buffer
	if err := runKeys(&buf, st, "cryptix/search", "yaml"); err != nil {
		t.Fatalf("keys: %v", err)
	}
	var got []string
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("yaml: %v\n%s", err, buf.String())
	}
	want := []string{"cryptix/search:q=btc", "cryptix/search:q=eth"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("keys (-want +got):\n%s", diff)
	}
}

func TestRunGetReportsExpiry(t *testing.T) {
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	st := seed(t, created)
	var buf bytes.Buffer
	if err := runGet(&buf, st, "cryptix/search", "q=btc", "json", created.Add(2*time.Minute)); err != nil {
		t.Fatalf("get: %v", err)
	}
	var rec storedRecord
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !rec.Expired || rec.TTL != "1m0s" || rec.Key != "cryptix/search:q=btc" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if err := runGet(&buf, st, "cryptix/search", "q=missing", "json", created); err == nil {
		t.Fatalf("expected error for missing key")
	}
}

func TestRenderRejectsUnknownFormat(t *testing.T) {
	err := render(&bytes.Buffer{}, "xml", []string{})
	if err == nil || !strings.Contains(err.Error(), "xml") {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestRunKeysParentNamespaceExcludesNested(t *testing.T) {
	st := seed(t, time.Now())
	var buf bytes.Buffer
	if err := runKeys(&buf, st, "cryptix", "json"); err != nil {
		t.Fatalf("keys: %v", err)
	}
	var got []string
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if diff := cmp.Diff([]string{"cryptix:q=btc"}, got); diff != "" {
		t.Fatalf("keys (-want +got):\n%s", diff)
	}
}
