package stream

import (
	"encoding/json"

	"brokerhub/core/internal/events"
	"brokerhub/core/internal/search"
)

// Frame types exchanged over the event stream.
const (
	FrameEvent        = "event"
	FrameEmit         = "emit"
	FrameAck          = "ack"
	FramePing         = "ping"
	FramePong         = "pong"
	FrameSearch       = "search"
	FrameSearchResult = "search_result"
	FrameError        = "error"
	FrameReplaced     = "replaced" // sent to a connection superseded by a newer one
)

// Frame is one JSON message on the stream, in either direction.
type Frame struct {
	Type    string          `json:"type"`
	TsMs    int64           `json:"ts_ms,omitempty"`
	Action  events.Action   `json:"action,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Event   *events.Event   `json:"event,omitempty"`
	Query   *search.Query   `json:"query,omitempty"`
	Result  *search.Result  `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}
