package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"brokerhub/core/internal/cache"
	"brokerhub/core/internal/config"
	"brokerhub/core/internal/events"
	"brokerhub/core/internal/health"
	"brokerhub/core/internal/search"
	"brokerhub/core/internal/storage"
	"brokerhub/core/internal/types"
)

type mockFetcher struct {
	calls int
	err   error
}

func (m *mockFetcher) FetchBrokers(ctx context.Context, q search.Query) ([]types.Broker, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return []types.Broker{{ID: "ig", Name: "IG"}}, nil
}

func (m *mockFetcher) Ping(ctx context.Context) error { return m.err }

type fixture struct {
	srv     *httptest.Server
	bus     *events.Bus
	fetcher *mockFetcher
	cache   *cache.Cache[[]types.Broker]
}

func newFixture(t *testing.T, tweaks ...func(*config.Config)) *fixture {
	t.Helper()
	var cfg config.Config
	cfg.Stream.TokenSecret = "test-secret"
	cfg.Stream.TokenTTLMin = 5
	cfg.Stream.TokenSkewSecs = 30
	for _, tw := range tweaks {
		tw(&cfg)
	}

	st := storage.NewMemory(0)
	j := events.NewJournal(10)
	bus := events.New(events.WithJournal(j))
	f := &mockFetcher{}
	c := cache.New[[]types.Broker](cache.Options{Namespace: "api-test", Store: st})
	svc := search.NewService(c, f, bus, time.Minute)
	h := NewHandlers(cfg, bus, j, svc, health.Deps{Store: st, Upstream: f}, c)
	srv := httptest.NewServer(NewRouter(h, nil))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, bus: bus, fetcher: f, cache: c}
}

func (f *fixture) do(t *testing.T, method, path string, body string, hdr map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSearchEndpoint(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/search?q=IG&regulator=FCA&limit=5", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var res search.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Cached || len(res.Brokers) != 1 || res.Query.Limit != 5 {
		t.Fatalf("unexpected result %+v", res)
	}

	resp = f.do(t, http.MethodGet, "/search?q=ig&regulator=FCA&limit=5", "", nil)
	json.NewDecoder(resp.Body).Decode(&res)
	if !res.Cached || f.fetcher.calls != 1 {
		t.Fatalf("second search not cached (cached=%v calls=%d)", res.Cached, f.fetcher.calls)
	}

	resp = f.do(t, http.MethodDelete, "/search?q=ig&regulator=FCA&limit=5", "", nil)
	var inv map[string]any
	json.NewDecoder(resp.Body).Decode(&inv)
	if inv["removed"] != true {
		t.Fatalf("invalidate: %v", inv)
	}
}

func TestSearchEndpointErrors(t *testing.T) {
	f := newFixture(t)
	cases := map[string]int{
		"/search":                      http.StatusBadRequest,
		"/search?q=ig&colour=red":      http.StatusBadRequest,
		"/search?q=ig&limit=-1":        http.StatusBadRequest,
		"/search?q=ig&min_rating=high": http.StatusBadRequest,
	}
	for path, want := range cases {
		if resp := f.do(t, http.MethodGet, path, "", nil); resp.StatusCode != want {
			t.Fatalf("%s: expected %d, got %d", path, want, resp.StatusCode)
		}
	}
	f.fetcher.err = search.ErrUpstream
	if resp := f.do(t, http.MethodGet, "/search?q=down", "", nil); resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodGet, "/readyz", "", nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from readyz, got %d", resp.StatusCode)
	}
}

func TestCacheEndpoints(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/search?q=ig", "", nil)

	resp := f.do(t, http.MethodGet, "/cache/stats", "", nil)
	var out struct {
		Caches []cache.Stats `json:"caches"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	if len(out.Caches) != 1 || out.Caches[0].Entries != 1 || !out.Caches[0].Durable {
		t.Fatalf("unexpected stats %+v", out.Caches)
	}

	f.do(t, http.MethodDelete, "/cache", "", nil)
	if f.cache.Size() != 0 {
		t.Fatalf("cache not cleared")
	}
	if resp := f.do(t, http.MethodPost, "/cache/stats", "", nil); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestEmitRequiresToken(t *testing.T) {
	f := newFixture(t)
	got := make(chan events.NotificationAdded, 1)
	events.On(f.bus, func(_ events.Event, p events.NotificationAdded) { got <- p })

	body := `{"action":"notification_added","payload":{"id":"n1","level":"info","message":"hi"}}`
	if resp := f.do(t, http.MethodPost, "/events", body, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp := f.do(t, http.MethodPost, "/stream-token", `{"client_id":"web-1"}`, nil)
	var tok struct {
		ClientID string `json:"client_id"`
		Token    string `json:"token"`
	}
	json.NewDecoder(resp.Body).Decode(&tok)
	if tok.ClientID != "web-1" || tok.Token == "" {
		t.Fatalf("unexpected token response %+v", tok)
	}

	hdr := map[string]string{"Authorization": "Bearer " + tok.Token, "X-Client-ID": "web-1"}
	if resp := f.do(t, http.MethodPost, "/events", body, hdr); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	select {
	case p := <-got:
		if p.Message != "hi" {
			t.Fatalf("payload %+v", p)
		}
	default:
		t.Fatalf("event not delivered")
	}

	bad := `{"action":"nope"}`
	if resp := f.do(t, http.MethodPost, "/events", bad, hdr); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", resp.StatusCode)
	}
}

func TestMintTokenGeneratesClientID(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/stream-token", "", nil)
	var tok map[string]any
	json.NewDecoder(resp.Body).Decode(&tok)
	if id, _ := tok["client_id"].(string); id == "" {
		t.Fatalf("no client id minted: %v", tok)
	}
}

func TestMintTokenRequiresKeyWhenConfigured(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Stream.MintKey = "mint-me" })

	cases := []struct {
		name string
		hdr  map[string]string
		want int
	}{
		{"no key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-Mint-Key": "nope"}, http.StatusUnauthorized},
		{"right key", map[string]string{"X-Mint-Key": "mint-me"}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/stream-token", "", tc.hdr)
			if resp.StatusCode != tc.want {
				t.Fatalf("status %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestRecentEvents(t *testing.T) {
	f := newFixture(t)
	f.bus.Emit(events.ActionModalOpened, events.ModalOpened{Name: "a"}, "test")
	f.bus.Emit(events.ActionModalClosed, events.ModalClosed{Name: "a"}, "test")

	resp := f.do(t, http.MethodGet, "/events/recent?action=modal_closed", "", nil)
	var out struct {
		Events []events.Event `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Events) != 1 || out.Events[0].Action != events.ActionModalClosed {
		t.Fatalf("unexpected events %+v", out.Events)
	}
	if resp := f.do(t, http.MethodGet, "/events/recent?action=bogus", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
