// Package stream pushes bus events to websocket clients and lets them emit
// events and run debounced searches over the same connection.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"brokerhub/core/internal/auth"
	"brokerhub/core/internal/events"
	"brokerhub/core/internal/search"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

type Server struct {
	Bus       *events.Bus
	Search    *search.Service // nil disables search frames
	Reg       *Registry
	Secret    string
	SkewSecs  int
	Debounce  time.Duration
	Now       func() time.Time
	AcceptOpt *ws.AcceptOptions
}

func NewServer(bus *events.Bus, svc *search.Service, reg *Registry, secret string, skewSecs int, debounce time.Duration) *Server {
	return &Server{Bus: bus, Search: svc, Reg: reg, Secret: secret, SkewSecs: skewSecs, Debounce: debounce, Now: time.Now}
}

// ParseActions turns "a,b" into actions. An empty list means every action.
func ParseActions(raw string) ([]events.Action, error) {
	var out []events.Action
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		a, err := events.ParseAction(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// BearerToken reads the token from the Authorization header, falling back to
// the token query parameter for browser clients that cannot set headers.
func BearerToken(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (s *Server) HandleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")
	if clientID == "" {
		http.Error(w, "missing client_id", http.StatusBadRequest)
		return
	}
	token := BearerToken(r)
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	if s.Secret == "" {
		http.Error(w, "stream auth not configured", http.StatusUnauthorized)
		return
	}
	if _, _, err := auth.ValidateStreamToken(s.Secret, token, clientID, s.Now(), s.SkewSecs); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	filter, err := ParseActions(q.Get("actions"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c, err := ws.Accept(w, r, s.AcceptOpt)
	if err != nil {
		log.Printf("[stream] ws accept: %v", err)
		return
	}
	if s.Reg.Get(clientID) != nil {
		nctx, ncancel := context.WithTimeout(r.Context(), writeTimeout)
		err := s.Reg.SendJSON(nctx, clientID, Frame{Type: FrameReplaced, TsMs: s.Now().UnixMilli()})
		ncancel()
		if err != nil {
			log.Printf("[stream] client %s: replaced notice: %v", clientID, err)
		}
	}
	if s.Reg.Replace(clientID, c) {
		log.Printf("[stream] client %s replaced", clientID)
	}
	metricConnections.Inc()
	defer metricConnections.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sess := newSession(clientID, s)

	unsub, err := s.Bus.SubscribeMany(filter, func(evt events.Event) {
		e := evt
		sess.send(Frame{Type: FrameEvent, TsMs: s.Now().UnixMilli(), Event: &e})
	})
	if err != nil {
		_ = c.Close(ws.StatusInternalError, "subscribe failed")
		s.Reg.Remove(clientID, c)
		return
	}
	log.Printf("[stream] client %s connected (actions=%d)", clientID, len(filter))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		sess.writeLoop(ctx, c)
	}()

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ != ws.MessageText && typ != ws.MessageBinary {
			continue
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			sess.send(Frame{Type: FrameError, Error: "invalid frame: " + err.Error()})
			continue
		}
		sess.dispatch(f)
	}

	unsub()
	sess.close()
	cancel()
	<-writerDone
	_ = c.Close(ws.StatusNormalClosure, "done")
	s.Reg.Remove(clientID, c)
	log.Printf("[stream] client %s disconnected", clientID)
}

// session is the per-connection state between the reader, the bus handler
// and the writer.
type session struct {
	clientID string
	srv      *Server
	out      chan Frame
	done     chan struct{}
	debounce *search.Debouncer
}

func newSession(clientID string, srv *Server) *session {
	s := &session{clientID: clientID, srv: srv, out: make(chan Frame, sendBuffer), done: make(chan struct{})}
	if srv.Search != nil {
		s.debounce = search.NewDebouncer(srv.Search, srv.Debounce, func(res search.Result, err error) {
			if err != nil {
				s.send(Frame{Type: FrameError, Error: err.Error()})
				return
			}
			r := res
			s.send(Frame{Type: FrameSearchResult, TsMs: srv.Now().UnixMilli(), Result: &r})
		})
	}
	return s
}

// send queues f without blocking; bus handlers run inside Emit so a slow
// client drops frames instead of stalling the publisher.
func (s *session) send(f Frame) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.out <- f:
	default:
		metricDropped.Inc()
		log.Printf("[stream] client %s: send buffer full, dropping %s frame", s.clientID, f.Type)
	}
}

func (s *session) writeLoop(ctx context.Context, c *ws.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.out:
			b, err := json.Marshal(f)
			if err != nil {
				log.Printf("[stream] client %s: encode %s: %v", s.clientID, f.Type, err)
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(wctx, ws.MessageText, b)
			cancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Printf("[stream] client %s: write: %v", s.clientID, err)
				}
				return
			}
		}
	}
}

func (s *session) close() {
	close(s.done)
	if s.debounce != nil {
		s.debounce.Stop()
	}
}
