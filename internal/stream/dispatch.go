package stream

import (
	"brokerhub/core/internal/events"
)

// dispatch handles one inbound client frame.
func (s *session) dispatch(f Frame) {
	switch f.Type {
	case FramePing, FrameEmit, FrameSearch:
		metricFrames.WithLabelValues(f.Type).Inc()
	default:
		metricFrames.WithLabelValues("unknown").Inc()
	}
	switch f.Type {
	case FramePing:
		s.send(Frame{Type: FramePong, TsMs: s.srv.Now().UnixMilli()})
	case FrameEmit:
		action, err := events.ParseAction(string(f.Action))
		if err != nil {
			s.send(Frame{Type: FrameError, Action: f.Action, Error: err.Error()})
			return
		}
		p, err := events.DecodePayload(action, f.Payload)
		if err != nil {
			s.send(Frame{Type: FrameError, Action: action, Error: err.Error()})
			return
		}
		if err := s.srv.Bus.Emit(action, p, "stream:"+s.clientID); err != nil {
			s.send(Frame{Type: FrameError, Action: action, Error: err.Error()})
			return
		}
		s.send(Frame{Type: FrameAck, Action: action, TsMs: s.srv.Now().UnixMilli()})
	case FrameSearch:
		if s.debounce == nil {
			s.send(Frame{Type: FrameError, Error: "search not available"})
			return
		}
		if f.Query == nil {
			s.send(Frame{Type: FrameError, Error: "search frame without query"})
			return
		}
		s.debounce.Trigger(*f.Query)
	default:
		s.send(Frame{Type: FrameError, Error: "unknown frame type " + f.Type})
	}
}
