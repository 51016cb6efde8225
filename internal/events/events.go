// Package events is the in-process publish/subscribe bus that keeps site
// components in sync without them holding references to each other.
//
// Actions form a closed set shared by emitters and subscribers. Adding an
// action is additive; renaming one breaks every consumer.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Action names a category of cross-component notification.
type Action string

const (
	ActionSearchUpdated      Action = "search_updated"
	ActionUserAuthenticated  Action = "user_authenticated"
	ActionUserLoggedOut      Action = "user_logged_out"
	ActionComparisonUpdated  Action = "comparison_updated"
	ActionChatOpened         Action = "chat_opened"
	ActionChatClosed         Action = "chat_closed"
	ActionPreferencesUpdated Action = "preferences_updated"
	ActionNotificationAdded  Action = "notification_added"
	ActionModalOpened        Action = "modal_opened"
	ActionModalClosed        Action = "modal_closed"

	// ActionJournalTruncated only appears in a Journal. It cannot be
	// emitted or subscribed to.
	ActionJournalTruncated Action = "events_truncated"
)

var actions = []Action{
	ActionSearchUpdated,
	ActionUserAuthenticated,
	ActionUserLoggedOut,
	ActionComparisonUpdated,
	ActionChatOpened,
	ActionChatClosed,
	ActionPreferencesUpdated,
	ActionNotificationAdded,
	ActionModalOpened,
	ActionModalClosed,
}

var (
	ErrUnknownAction   = errors.New("unknown action")
	ErrNilHandler      = errors.New("nil handler")
	ErrPayloadMismatch = errors.New("payload does not match action")
	ErrPointerPayload  = errors.New("payloads are passed by value, not pointer")
)

// Actions returns every action that can be emitted, in declaration order.
func Actions() []Action {
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}

// Valid reports whether a is one of the emittable actions.
func (a Action) Valid() bool {
	for _, v := range actions {
		if v == a {
			return true
		}
	}
	return false
}

func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("%q: %w", s, ErrUnknownAction)
	}
	return a, nil
}

// Event is handed to every subscriber of its action and then discarded.
type Event struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	Payload   Payload   `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        string          `json:"id"`
		Action    Action          `json:"action"`
		Payload   json.RawMessage `json:"payload"`
		Timestamp time.Time       `json:"timestamp"`
		Source    string          `json:"source"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p, err := DecodePayload(raw.Action, raw.Payload)
	if err != nil {
		return err
	}
	*e = Event{
		ID:        raw.ID,
		Action:    raw.Action,
		Payload:   p,
		Timestamp: raw.Timestamp,
		Source:    raw.Source,
	}
	return nil
}
