package events

import (
	"encoding/json"
	"fmt"
)

// Payload is the action-specific body of an Event. Every action has exactly
// one payload type, so a subscriber can switch on the concrete type instead
// of casting a generic map.
type Payload interface {
	Action() Action
	sealed()
}

type SearchUpdated struct {
	Query       string            `json:"query"`
	Filters     map[string]string `json:"filters,omitempty"`
	ResultCount int               `json:"result_count"`
	Cached      bool              `json:"cached"`
}

type UserAuthenticated struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

type UserLoggedOut struct {
	UserID string `json:"user_id"`
}

// ComparisonUpdated carries the full current comparison selection, not a delta.
type ComparisonUpdated struct {
	BrokerIDs []string `json:"broker_ids"`
}

type ChatOpened struct {
	ChatID string `json:"chat_id,omitempty"`
}

type ChatClosed struct {
	ChatID string `json:"chat_id,omitempty"`
}

type PreferencesUpdated struct {
	Preferences map[string]string `json:"preferences"`
}

type NotificationAdded struct {
	ID      string `json:"id"`
	Level   string `json:"level"` // info, success, warning, error
	Message string `json:"message"`
}

type ModalOpened struct {
	Name string `json:"name"`
}

type ModalClosed struct {
	Name string `json:"name"`
}

// JournalTruncated marks the point where a Journal dropped older entries.
type JournalTruncated struct {
	Dropped int `json:"dropped"`
	Kept    int `json:"kept"`
}

func (SearchUpdated) Action() Action      { return ActionSearchUpdated }
func (UserAuthenticated) Action() Action  { return ActionUserAuthenticated }
func (UserLoggedOut) Action() Action      { return ActionUserLoggedOut }
func (ComparisonUpdated) Action() Action  { return ActionComparisonUpdated }
func (ChatOpened) Action() Action         { return ActionChatOpened }
func (ChatClosed) Action() Action         { return ActionChatClosed }
func (PreferencesUpdated) Action() Action { return ActionPreferencesUpdated }
func (NotificationAdded) Action() Action  { return ActionNotificationAdded }
func (ModalOpened) Action() Action        { return ActionModalOpened }
func (ModalClosed) Action() Action        { return ActionModalClosed }
func (JournalTruncated) Action() Action   { return ActionJournalTruncated }

func (SearchUpdated) sealed()      {}
func (UserAuthenticated) sealed()  {}
func (UserLoggedOut) sealed()      {}
func (ComparisonUpdated) sealed()  {}
func (ChatOpened) sealed()         {}
func (ChatClosed) sealed()         {}
func (PreferencesUpdated) sealed() {}
func (NotificationAdded) sealed()  {}
func (ModalOpened) sealed()        {}
func (ModalClosed) sealed()        {}
func (JournalTruncated) sealed()   {}

// DecodePayload parses raw JSON into the payload type owned by action.
// An empty or null body yields the zero payload for the action.
func DecodePayload(action Action, raw json.RawMessage) (Payload, error) {
	switch action {
	case ActionSearchUpdated:
		return decodeAs[SearchUpdated](action, raw)
	case ActionUserAuthenticated:
		return decodeAs[UserAuthenticated](action, raw)
	case ActionUserLoggedOut:
		return decodeAs[UserLoggedOut](action, raw)
	case ActionComparisonUpdated:
		return decodeAs[ComparisonUpdated](action, raw)
	case ActionChatOpened:
		return decodeAs[ChatOpened](action, raw)
	case ActionChatClosed:
		return decodeAs[ChatClosed](action, raw)
	case ActionPreferencesUpdated:
		return decodeAs[PreferencesUpdated](action, raw)
	case ActionNotificationAdded:
		return decodeAs[NotificationAdded](action, raw)
	case ActionModalOpened:
		return decodeAs[ModalOpened](action, raw)
	case ActionModalClosed:
		return decodeAs[ModalClosed](action, raw)
	case ActionJournalTruncated:
		return decodeAs[JournalTruncated](action, raw)
	default:
		return nil, fmt.Errorf("decode payload %q: %w", action, ErrUnknownAction)
	}
}

func decodeAs[T Payload](action Action, raw json.RawMessage) (Payload, error) {
	var p T
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", action, err)
	}
	return p, nil
}
