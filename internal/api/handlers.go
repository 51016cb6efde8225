package api

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"brokerhub/core/internal/auth"
	"brokerhub/core/internal/cache"
	"brokerhub/core/internal/config"
	"brokerhub/core/internal/events"
	"brokerhub/core/internal/health"
	"brokerhub/core/internal/search"
	"brokerhub/core/internal/stream"
)

// CacheAdmin is the slice of a cache the HTTP surface can inspect and reset.
type CacheAdmin interface {
	Stats() cache.Stats
	Clear()
}

type Handlers struct {
	cfg     config.Config
	bus     *events.Bus
	journal *events.Journal
	search  *search.Service
	caches  []CacheAdmin
	health  health.Deps
	now     func() time.Time
}

func NewHandlers(cfg config.Config, bus *events.Bus, j *events.Journal, svc *search.Service, hd health.Deps, caches ...CacheAdmin) *Handlers {
	return &Handlers{cfg: cfg, bus: bus, journal: j, search: svc, caches: caches, health: hd, now: time.Now}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	status := health.CheckAll(ctx, h.health)
	code := http.StatusOK
	if !status.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// queryFromRequest reads q, limit and every other parameter as a filter.
func queryFromRequest(r *http.Request) (search.Query, error) {
	params := r.URL.Query()
	q := search.Query{Text: params.Get("q")}
	for k, vals := range params {
		switch k {
		case "q":
		case "limit":
			n, err := strconv.Atoi(vals[0])
			if err != nil || n < 0 {
				return q, errors.New("limit must be a non-negative integer")
			}
			q.Limit = n
		default:
			if q.Filters == nil {
				q.Filters = make(map[string]string)
			}
			q.Filters[k] = vals[0]
		}
	}
	return q, nil
}

func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.search.Search(r.Context(), q)
	switch {
	case err == nil:
	case errors.Is(err, search.ErrEmptyQuery), errors.Is(err, search.ErrUnknownFilter), errors.Is(err, search.ErrInvalidFilter):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, search.ErrUpstream):
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) HandleInvalidateSearch(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "removed": h.search.Invalidate(q)})
}

func (h *Handlers) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := make([]cache.Stats, 0, len(h.caches))
	for _, c := range h.caches {
		stats = append(stats, c.Stats())
	}
	writeJSON(w, http.StatusOK, map[string]any{"caches": stats})
}

func (h *Handlers) HandleClearCache(w http.ResponseWriter, r *http.Request) {
	for _, c := range h.caches {
		c.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "cleared": len(h.caches)})
}

type emitRequest struct {
	Action  events.Action   `json:"action"`
	Payload json.RawMessage `json:"payload"`
	Source  string          `json:"source"`
}

// HandleEmit publishes an event on behalf of a client holding a stream token.
func (h *Handlers) HandleEmit(w http.ResponseWriter, r *http.Request) {
	clientID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req emitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	action, err := events.ParseAction(string(req.Action))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := events.DecodePayload(action, req.Payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	source := req.Source
	if source == "" {
		source = "http:" + clientID
	}
	if err := h.bus.Emit(action, p, source); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "action": action})
}

func (h *Handlers) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	clientID := r.Header.Get("X-Client-ID")
	if clientID == "" {
		clientID = r.URL.Query().Get("client_id")
	}
	token := stream.BearerToken(r)
	if clientID == "" || token == "" {
		http.Error(w, "missing client id or token", http.StatusUnauthorized)
		return "", false
	}
	if h.cfg.Stream.TokenSecret == "" {
		http.Error(w, "stream auth not configured", http.StatusUnauthorized)
		return "", false
	}
	if _, _, err := auth.ValidateStreamToken(h.cfg.Stream.TokenSecret, token, clientID, h.now(), h.cfg.Stream.TokenSkewSecs); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return "", false
	}
	return clientID, true
}

func (h *Handlers) HandleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []events.Event{}})
		return
	}
	list := h.journal.List()
	if raw := r.URL.Query().Get("action"); raw != "" {
		a, err := events.ParseAction(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		list = h.journal.ListAction(a)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":  list,
		"dropped": h.journal.Dropped(),
	})
}

type tokenRequest struct {
	ClientID string `json:"client_id"`
}

// HandleMintStreamToken issues a stream token. Anyone may mint one unless
// STREAM_MINT_KEY is set, in which case the caller must present it in
// X-Mint-Key.
func (h *Handlers) HandleMintStreamToken(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Stream.TokenSecret == "" {
		http.Error(w, "missing STREAM_TOKEN_SECRET", http.StatusBadRequest)
		return
	}
	if key := h.cfg.Stream.MintKey; key != "" {
		got := r.Header.Get("X-Mint-Key")
		if !hmac.Equal([]byte(got), []byte(key)) {
			http.Error(w, "invalid mint key", http.StatusUnauthorized)
			return
		}
	}
	var req tokenRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.ClientID == "" {
		req.ClientID = uuid.New().String()
	}
	ttl := h.cfg.Stream.TokenTTLMin
	if ttl <= 0 {
		ttl = 60
	}
	exp := h.now().Add(time.Duration(ttl) * time.Minute).Unix()
	token, err := auth.GenerateStreamToken(h.cfg.Stream.TokenSecret, req.ClientID, exp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"client_id": req.ClientID,
		"token":     token,
		"exp":       exp,
	})
}
